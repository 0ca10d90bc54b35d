// Package cmd defines and implements the CLI commands for the unbloq executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/app"
	"github.com/JakeFAU/unbloq/internal/config"
	"github.com/JakeFAU/unbloq/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// appHolder carries the App built by PersistentPreRunE back to run, which
// closes it whether or not the subcommand succeeded.
type appHolder struct {
	app *app.App
}

type appFactory func(path string) (*app.App, error)

// newApp is the application factory used by Execute.
var newApp appFactory = func(path string) (*app.App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd(build appFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "unbloq",
		Short: "Send readers of paywalled articles to an archived copy.",
		Long: `unbloq resolves article URLs to archive.ph snapshots.

It runs as a Resolution API backed by a headless browser pool and a shared
cache, as the public redirect site in front of that API, or as a forum bot
that answers posts linking to paywalled domains with an archive link.`,
		SilenceUsage: true,

		// Builds the application before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			holder, ok := cmd.Context().Value(appKey).(*appHolder)
			if !ok {
				return errors.New("command context carries no application holder")
			}
			appInstance, err := build(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			holder.app = appInstance
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFrontendCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newResolveCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], newApp); err != nil {
		fmt.Fprintln(os.Stderr, "unbloq:", err)
		stop()
		os.Exit(1)
	}
}

// run executes the command tree and always releases the App it built.
// cobra skips post-run hooks when RunE fails, so cleanup lives here.
func run(ctx context.Context, args []string, build appFactory) error {
	holder := &appHolder{}
	defer func() {
		if holder.app == nil {
			return
		}
		holder.app.Close()
		_ = holder.app.Logger().Sync() //nolint:errcheck // stderr sync fails on some terminals
	}()

	root := newRootCmd(build)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.WithValue(ctx, appKey, holder)); err != nil {
		return fmt.Errorf("execute command: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	holder, ok := ctx.Value(appKey).(*appHolder)
	if !ok || holder.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return holder.app, nil
}
