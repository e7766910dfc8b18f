// Package cli wires the two entry points: the daily pipeline and the
// issue-triggered deep analysis.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile         string
	skipConfigCheck bool
)

// exitError carries a typed process exit code through cobra's RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "insight",
		Short:         "Daily AI research intelligence: arXiv papers, industry news, LLM analysis.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.insight.yaml)")
	rootCmd.PersistentFlags().BoolVar(&skipConfigCheck, "skip-config-check", false, "skip configuration validation")

	rootCmd.AddCommand(NewDailyCmd())
	rootCmd.AddCommand(NewDeepAnalysisCmd())
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exit.err)
			}
			return exit.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
