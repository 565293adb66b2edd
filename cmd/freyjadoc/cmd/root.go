/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/freyjadoc/pkg/cache"
	"github.com/ssargent/freyjadoc/pkg/config"
	"github.com/ssargent/freyjadoc/pkg/docstore"
	"github.com/ssargent/freyjadoc/pkg/logging"
	"github.com/ssargent/freyjadoc/pkg/storage"
)

// cfg is loaded by the root command before any subcommand runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "freyjadoc",
	Short: "freyjadoc - lazy structured document store",
	Long: `freyjadoc stores structured documents as compressed blobs in pebble.
Documents are decoded field by field on demand, and recently used blobs
are kept compressed in memory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		level, ok := logging.ParseLevel(cfg.Logging.Level)
		if !ok {
			logging.Warnf("unknown log level %q, using %s", cfg.Logging.Level, level)
		}
		logging.SetLevel(level)
		return nil
	},
}

// loadConfig reads --config when it exists and falls back to defaults.
// --data-dir overrides the configured data directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")

	c := config.DefaultConfig()
	switch {
	case config.ConfigExists(path):
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	case explicit:
		return nil, errors.Newf("config file does not exist: %s", path)
	}

	if cmd.Flags().Changed("data-dir") {
		c.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	return c, nil
}

// openStore opens the document store described by c.
func openStore(c *config.Config) (*docstore.Store, error) {
	types, err := c.StructTypes()
	if err != nil {
		return nil, err
	}
	blobCfg, err := c.CompressionConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.DataDir, 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create data dir")
	}
	bs, err := storage.Open(filepath.Join(c.DataDir, "blobs"), storage.Options{})
	if err != nil {
		return nil, err
	}
	opts := docstore.Options{Compression: blobCfg, Types: types}
	if c.Cache.Enabled {
		opts.Cache = cache.New("documents")
	}
	store, err := docstore.New(bs, opts)
	if err != nil {
		_ = bs.Close()
		return nil, err
	}
	return store, nil
}

// withStore runs fn against an open store and closes it afterwards.
func withStore(fn func(store *docstore.Store) error) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.GetDefaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Data directory for the store")
}
