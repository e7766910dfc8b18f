package cli

import (
	"errors"
	"testing"
)

func exitCodeOf(t *testing.T, args ...string) int {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected an exit error, got %v", err)
	}
	return exit.code
}

func TestDailyRejectsUnknownTask(t *testing.T) {
	if code := exitCodeOf(t, "daily", "--task", "bogus"); code != 1 {
		t.Errorf("Unknown task should exit 1, got %d", code)
	}
}

func TestDeepAnalysisRequiresTitle(t *testing.T) {
	if code := exitCodeOf(t, "deep-analysis", "--issue-number", "7"); code != 1 {
		t.Errorf("Missing title should exit 1, got %d", code)
	}
}

func TestDeepAnalysisRejectsUnparsableTitle(t *testing.T) {
	if code := exitCodeOf(t, "deep-analysis", "--issue-title", "Please analyze this"); code != 1 {
		t.Errorf("Unparsable title should exit 1, got %d", code)
	}
}
