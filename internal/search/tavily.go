package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyProvider uses the Tavily search API.
type TavilyProvider struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	maxResults int
}

// NewTavilyProvider creates a Tavily search provider.
func NewTavilyProvider(apiKey string, maxResults int, timeout time.Duration) *TavilyProvider {
	return &TavilyProvider{
		client:     &http.Client{Timeout: timeout},
		endpoint:   tavilyEndpoint,
		apiKey:     apiKey,
		maxResults: maxResults,
	}
}

// Name returns the name of this provider
func (t *TavilyProvider) Name() string {
	return "Tavily"
}

// SetEndpoint overrides the API endpoint (tests).
func (t *TavilyProvider) SetEndpoint(endpoint string) { t.endpoint = endpoint }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query against the Tavily API.
func (t *TavilyProvider) Search(ctx context.Context, query string) ([]Result, error) {
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  t.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if i >= t.maxResults {
			break
		}
		results = append(results, Result{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Content,
			Domain:  extractDomain(r.URL),
			Source:  "Tavily",
			Rank:    i + 1,
		})
	}
	return results, nil
}
