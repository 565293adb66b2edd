/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/freyjadoc/pkg/config"
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Helpers for running freyjadoc under systemd",
}

// unitCmd represents the service unit command
var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Render a systemd unit for freyjadoc serve",
	Long: `Render a systemd unit that runs freyjadoc serve with the current
configuration. The unit is printed unless --output is given.

Examples:
  freyjadoc service unit --user freyjadoc
  sudo freyjadoc service unit --output /etc/systemd/system/freyjadoc.service`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		user, _ := cmd.Flags().GetString("user")
		binary, _ := cmd.Flags().GetString("binary")
		output, _ := cmd.Flags().GetString("output")

		absConfig, err := filepath.Abs(configPath)
		if err != nil {
			return errors.Wrap(err, "invalid config path")
		}
		unit := systemdUnit(cfg, binary, absConfig, user)
		if output == "" {
			cmd.Print(unit)
			return nil
		}
		if err := os.WriteFile(output, []byte(unit), 0600); err != nil {
			return errors.Wrap(err, "failed to write unit file")
		}
		cmd.Printf("Wrote %s\n", output)
		cmd.Printf("To enable: sudo systemctl daemon-reload && sudo systemctl enable --now %s\n", filepath.Base(output))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(unitCmd)

	unitCmd.Flags().String("user", "freyjadoc", "User to run the service as")
	unitCmd.Flags().String("binary", "/usr/local/bin/freyjadoc", "Path to the freyjadoc binary")
	unitCmd.Flags().StringP("output", "o", "", "Write the unit to this path")
}

// systemdUnit returns the unit file content
func systemdUnit(c *config.Config, binary, configPath, user string) string {
	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		dataDir = c.DataDir
	}
	return fmt.Sprintf(`[Unit]
Description=freyjadoc document store
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, dataDir)
}
