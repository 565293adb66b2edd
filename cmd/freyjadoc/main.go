/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/freyjadoc/cmd/freyjadoc/cmd"

func main() {
	cmd.Execute()
}
