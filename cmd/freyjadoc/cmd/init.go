/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/freyjadoc/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Write a configuration file with a generated API key and a sample
"note" document type.

Examples:
  freyjadoc init
  freyjadoc init --config ./freyjadoc.yaml --data-dir ./data`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		force, _ := cmd.Flags().GetBool("force")

		if config.ConfigExists(path) && !force {
			cmd.Printf("Configuration already exists at %s. Use --force to overwrite.\n", path)
			return nil
		}
		c, err := config.BootstrapConfig(path, dataDir)
		if err != nil {
			return err
		}
		cmd.Printf("Wrote configuration to %s\n", path)
		cmd.Printf("Data directory: %s\n", c.DataDir)
		cmd.Printf("API key: %s\n", c.Security.APIKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
}
