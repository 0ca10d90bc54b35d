package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/unbloq/internal/frontend"
)

// newFrontendCmd creates the 'frontend' subcommand, which runs the public
// redirect site against a remote Resolution API.
func newFrontendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frontend",
		Short: "Run the redirect site",
		Long: `Serves the landing page and redirects /<url> to an archive of <url>,
resolving through the Resolution API at api_client.base_url (SCRAPE_URL).`,
		Args: cobra.NoArgs,
		RunE: runFrontend,
	}
}

func runFrontend(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	client, err := a.APIClient()
	if err != nil {
		return err
	}
	cfg := a.Config()
	srv := frontend.NewServer(frontend.Config{
		SiteName:       cfg.Frontend.SiteName,
		PublicBaseURL:  cfg.Frontend.PublicBaseURL,
		GitHubURL:      cfg.Frontend.GitHubURL,
		ContactEmail:   cfg.Frontend.ContactEmail,
		ResolveTimeout: cfg.APIClient.Timeout,
	}, client, a.Logger().Named("frontend"))
	return serveHTTP(cmd.Context(), cfg.Frontend.Port, srv.Handler(), a.Logger())
}
