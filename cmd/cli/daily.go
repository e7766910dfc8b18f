package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"insight/internal/config"
	"insight/internal/llm"
	"insight/internal/pipeline"
)

// NewDailyCmd builds the daily pipeline command. Exit codes: 0 success
// (including "no new content"), 1 invalid configuration, 3 runtime error.
func NewDailyCmd() *cobra.Command {
	var taskFlag string

	dailyCmd := &cobra.Command{
		Use:   "daily",
		Short: "Run the daily crawl pipeline or one of its tasks.",
		Long: `Runs the daily research-intelligence pipeline. --task selects a single
phase (arxiv, rss, analyze, summary, update-file-list, notify) or "all"
for the whole chain in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := pipeline.ParseTask(taskFlag)
			if err != nil {
				return exitWith(1, err)
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return exitWith(1, err)
			}
			if !skipConfigCheck {
				if err := config.Validate(cfg); err != nil {
					return exitWith(1, err)
				}
			}

			svc, err := llm.NewClient()
			if err != nil {
				return exitWith(1, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			status := pipeline.New(cfg, svc).Run(ctx, task)
			if code := status.ExitCode(); code != 0 {
				return exitWith(code, nil)
			}
			return nil
		},
	}

	dailyCmd.Flags().StringVar(&taskFlag, "task", "all", "task to run: arxiv|rss|analyze|summary|update-file-list|notify|all")
	return dailyCmd
}
