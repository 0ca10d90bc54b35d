package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/unbloq/internal/clock/system"
	"github.com/JakeFAU/unbloq/internal/forum/reddit"
	"github.com/JakeFAU/unbloq/internal/sweep"
)

// newSweepCmd creates the 'sweep' subcommand, which runs the forum bot.
func newSweepCmd() *cobra.Command {
	var sortMode string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the forum promotion bot",
		Long: `Searches the forum for posts linking to the configured domains, pre-warms
their archives through the Resolution API and replies with an archive link.
In recent mode the sweep repeats forever; in top mode it runs once.
The forum session is established once. If it expires, restart the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), sortMode)
		},
	}
	cmd.Flags().StringVar(&sortMode, "sort", "", "override bot.sort_mode (recent|top)")
	return cmd
}

func runSweep(ctx context.Context, sortOverride string) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()
	bot := cfg.Bot
	if sortOverride != "" {
		bot.SortMode = sortOverride
	}
	if err := bot.ValidateCredentials(); err != nil {
		return err
	}

	client, err := a.APIClient()
	if err != nil {
		return err
	}
	seen, err := a.SeenSet(ctx)
	if err != nil {
		return err
	}

	driver, err := reddit.New(reddit.Config{
		BaseURL:     bot.ForumBaseURL,
		Username:    bot.Username,
		Password:    bot.Password,
		WaitTimeout: bot.WaitTimeout,
		UserAgent:   cfg.Scrape.UserAgent,
		ExecPath:    cfg.Scrape.ExecPath,
		Headful:     bot.Headful,
		NoSandbox:   cfg.Scrape.NoSandbox,
	}, a.Logger().Named("reddit"))
	if err != nil {
		return fmt.Errorf("init forum driver: %w", err)
	}
	if err := driver.Start(); err != nil {
		return fmt.Errorf("start forum browser: %w", err)
	}
	defer driver.Close()

	controller, err := sweep.New(sweep.Config{
		Domains:           bot.Domains,
		SortMode:          sweep.SortMode(bot.SortMode),
		TimeWindow:        bot.TimeWindow,
		MaxCandidates:     bot.MaxCandidates,
		PublicBaseURL:     bot.PublicBaseURL,
		OwnDomain:         bot.OwnDomain,
		CommentTip:        bot.CommentTip,
		InterSweepDelay:   bot.InterSweepDelay,
		CandidateCooldown: bot.CandidateCooldown,
		BackoffMargin:     bot.BackoffMargin,
	}, driver, seen, client, system.New(), a.Logger().Named("sweep"))
	if err != nil {
		return fmt.Errorf("init sweep controller: %w", err)
	}

	if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run sweep: %w", err)
	}
	a.Logger().Info("sweep command finished")
	return nil
}
