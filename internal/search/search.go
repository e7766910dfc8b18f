// Package search provides the web-search tool used during deep analysis.
// Two backends are supported: Tavily (API key required) and DuckDuckGo
// (HTML scrape, no key).
package search

import (
	"context"
	"time"

	"insight/internal/config"
)

// Provider is a single search backend.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Name() string
}

// Result is one unified search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
	Source  string `json:"source"`
	Rank    int    `json:"rank"`
}

// NewProvider builds the backend selected by the search config section.
func NewProvider(cfg config.Search) (Provider, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch cfg.API {
	case "tavily":
		if cfg.TavilyAPIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewTavilyProvider(cfg.TavilyAPIKey, maxResults, timeout), nil
	case "duckduckgo", "":
		return NewDuckDuckGoProvider(maxResults, timeout), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
