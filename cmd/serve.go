package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/unbloq/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which runs the Resolution API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Resolution API",
		Long: `Serves GET /archive?url=... backed by the resolution cache and the
headless browser pool. The browser is launched before the listener opens.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := a.Resolver()
	if err != nil {
		return err
	}
	cfg := a.Config()
	srv := api.NewServer(res, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          a.Ready,
	}, a.Logger().Named("api"))
	return serveHTTP(cmd.Context(), cfg.Server.Port, srv.Handler(), a.Logger())
}
