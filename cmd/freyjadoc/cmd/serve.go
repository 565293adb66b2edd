package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/freyjadoc/pkg/api"
	"github.com/ssargent/freyjadoc/pkg/docstore"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the freyjadoc REST API server.

The server exposes documents under /api/v1/documents/{type}/{id} and
Prometheus metrics under /metrics.

Example:
  freyjadoc serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Bind, _ = cmd.Flags().GetString("bind")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withStore(func(store *docstore.Store) error {
			cmd.Printf("Serving %d document types on %s:%d\n", len(store.Types()), cfg.Bind, cfg.Port)
			return api.StartServer(ctx, store, api.ServerConfig{
				Port:   cfg.Port,
				Bind:   cfg.Bind,
				APIKey: cfg.Security.APIKey,
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to")
}
