package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/resolver"
)

type resolveFunc func(ctx context.Context, u normalize.URL) (resolver.Result, error)

// newResolveCmd creates the 'resolve' subcommand, a one-shot lookup useful
// for debugging selectors and cache contents.
func newResolveCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve one URL and print its archive link",
		Long: `Normalizes <url> the way the redirect site does and resolves it, either
in-process with a local browser or through the Resolution API (--remote).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var resolve resolveFunc
			if remote {
				client, err := a.APIClient()
				if err != nil {
					return err
				}
				resolve = client.Resolve
			} else {
				res, err := a.Resolver()
				if err != nil {
					return err
				}
				resolve = res.Resolve
			}
			return printResolution(cmd.Context(), cmd.OutOrStdout(), args[0], resolve)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "resolve through the Resolution API at api_client.base_url")
	return cmd
}

func printResolution(ctx context.Context, out io.Writer, raw string, resolve resolveFunc) error {
	target, err := normalize.Normalize(raw)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", raw, err)
	}
	res, err := resolve(ctx, target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	if _, err := fmt.Fprintf(out, "%s\t%s\n", res.Status, res.Link); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
