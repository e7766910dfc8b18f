package notify

import (
	"fmt"
	"net/url"
	"strings"
)

// issueTitleMaxChars caps the paper title inside the prefilled issue title.
const issueTitleMaxChars = 50

// IssueURL builds a prefilled GitHub new-issue URL that kicks off deep
// analysis for one paper. repo is "owner/name".
func IssueURL(repo, paperID, paperTitle string) string {
	if repo == "" {
		return ""
	}

	title := paperTitle
	if runes := []rune(title); len(runes) > issueTitleMaxChars {
		title = string(runes[:issueTitleMaxChars])
	}

	params := url.Values{}
	params.Set("title", fmt.Sprintf("[Analysis] %s: %s", paperID, title))
	params.Set("labels", "agent-task")
	params.Set("body", strings.Join([]string{
		"Requesting deep analysis for the paper above.",
		"",
		fmt.Sprintf("- arXiv ID: %s", paperID),
		fmt.Sprintf("- Title: %s", paperTitle),
	}, "\n"))

	return fmt.Sprintf("https://github.com/%s/issues/new?%s", repo, params.Encode())
}
