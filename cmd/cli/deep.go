package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"insight/internal/config"
	"insight/internal/deep"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/notify"
)

// NewDeepAnalysisCmd builds the issue-triggered deep-analysis command.
// Exit codes: 0 success, 1 argument error, 2 paper not found, 3 analysis
// failure.
func NewDeepAnalysisCmd() *cobra.Command {
	var (
		issueNumber int
		issueTitle  string
		issueBody   string
		repo        string
	)

	deepCmd := &cobra.Command{
		Use:   "deep-analysis",
		Short: "Run the multi-agent deep analysis for one paper from a GitHub issue.",
		Long: `Parses the issue title ("[Analysis] 2501.12345: Some Title"), fetches
the paper and its HTML fulltext, runs the research/write/review loop and
stores the Markdown report. The issue body, if given, carries extra
analysis instructions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if issueTitle == "" {
				return exitWith(1, fmt.Errorf("--issue-title is required"))
			}
			paperID, paperTitle, ok := deep.ParseIssueTitle(issueTitle)
			if !ok {
				return exitWith(1, fmt.Errorf("issue title %q does not match the analysis pattern", issueTitle))
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

			logger.Info("Starting deep analysis", "paper_id", paperID,
				"title", paperTitle, "issue", issueNumber)

			result, err := deep.NewRunner(cfg, svc).Analyze(ctx, paperID, issueBody)
			if err != nil {
				if errors.Is(err, deep.ErrPaperNotFound) {
					return exitWith(2, err)
				}
				return exitWith(3, err)
			}

			issueURL := ""
			if repo == "" {
				repo = os.Getenv("GITHUB_REPOSITORY")
			}
			if repo != "" && issueNumber > 0 {
				issueURL = fmt.Sprintf("https://github.com/%s/issues/%d", repo, issueNumber)
			}
			notifier := notify.NewNotifier(cfg.Notification)
			if err := notifier.SendDeepAnalysis(ctx, result, paperTitle, issueURL); err != nil {
				logger.Warn("Deep-analysis notification failed", "error", err.Error())
			}
			return nil
		},
	}

	deepCmd.Flags().IntVar(&issueNumber, "issue-number", 0, "GitHub issue number that triggered the analysis")
	deepCmd.Flags().StringVar(&issueTitle, "issue-title", "", "GitHub issue title ([Analysis] {id}: {title})")
	deepCmd.Flags().StringVar(&issueBody, "issue-body", "", "GitHub issue body with extra analysis instructions")
	deepCmd.Flags().StringVar(&repo, "repo", "", "owner/repo for result links (defaults to GITHUB_REPOSITORY)")
	return deepCmd
}
