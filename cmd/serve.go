package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/logohunter/internal/api"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve logos over HTTP",
		Long: `Runs the HTTP API until interrupted. The port comes from --port, then
the PORT environment variable (Cloud Run), then server.port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if port <= 0 {
				port = cfg.Server.Port
				if env, err := strconv.Atoi(os.Getenv("PORT")); err == nil && env > 0 {
					port = env
				}
			}

			server := api.NewServer(
				appInstance.Hunter(),
				appInstance.Emitter(),
				appInstance.Clock(),
				cfg,
				appInstance.Logger().Named("api"),
			)
			if err := server.Serve(cmd.Context(), fmt.Sprintf(":%d", port)); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
