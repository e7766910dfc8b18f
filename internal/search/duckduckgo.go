package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"insight/internal/logger"
)

// DuckDuckGoProvider scrapes the DuckDuckGo HTML endpoint. No API key is
// needed, so it is the default backend.
type DuckDuckGoProvider struct {
	client     *http.Client
	baseURL    string
	userAgent  string
	maxResults int

	mu        sync.Mutex
	rateLimit time.Duration
	lastCall  time.Time
}

// NewDuckDuckGoProvider creates a DuckDuckGo search provider.
func NewDuckDuckGoProvider(maxResults int, timeout time.Duration) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client:     &http.Client{Timeout: timeout},
		baseURL:    "https://html.duckduckgo.com/html/",
		userAgent:  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		maxResults: maxResults,
		rateLimit:  2 * time.Second, // Be respectful with rate limiting
	}
}

// Name returns the name of this provider
func (d *DuckDuckGoProvider) Name() string {
	return "DuckDuckGo"
}

// SetBaseURL overrides the endpoint (tests).
func (d *DuckDuckGoProvider) SetBaseURL(base string) { d.baseURL = base }

// Search performs a search using DuckDuckGo and returns results
func (d *DuckDuckGoProvider) Search(ctx context.Context, query string) ([]Result, error) {
	d.throttle()

	searchURL := d.buildSearchURL(query)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	bodyStr := string(body)

	// Check for CAPTCHA or blocking
	if strings.Contains(bodyStr, "captcha") || strings.Contains(bodyStr, "Captcha") || strings.Contains(bodyStr, "blocked") {
		logger.Debug("DuckDuckGo CAPTCHA detected", "query", query)
		return nil, fmt.Errorf("DuckDuckGo search blocked by CAPTCHA - try again later or switch to Tavily")
	}

	results := d.parseSearchResults(bodyStr, d.maxResults)

	logger.Debug("DuckDuckGo search completed", "query", query, "results_found", len(results))
	return results, nil
}

// throttle enforces the minimum spacing between requests.
func (d *DuckDuckGoProvider) throttle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if elapsed := time.Since(d.lastCall); elapsed < d.rateLimit {
		time.Sleep(d.rateLimit - elapsed)
	}
	d.lastCall = time.Now()
}

// buildSearchURL constructs the DuckDuckGo search URL with parameters
func (d *DuckDuckGoProvider) buildSearchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("b", "0")      // Start from first result
	params.Set("kl", "us-en") // Language/region
	params.Set("s", "0")      // Safe search off

	return d.baseURL + "?" + params.Encode()
}

// parseSearchResults extracts search results from DuckDuckGo HTML response
func (d *DuckDuckGoProvider) parseSearchResults(html string, maxResults int) []Result {
	var results []Result

	// Note: these patterns may need adjustment if DuckDuckGo changes their
	// HTML structure
	resultPattern := regexp.MustCompile(`<div class="result[^"]*"[^>]*>(.*?)</div>`)
	titlePattern := regexp.MustCompile(`<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	snippetPattern := regexp.MustCompile(`<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)

	resultMatches := resultPattern.FindAllStringSubmatch(html, -1)

	for i, match := range resultMatches {
		if len(results) >= maxResults {
			break
		}

		resultHTML := match[1]

		titleMatch := titlePattern.FindStringSubmatch(resultHTML)
		if len(titleMatch) < 3 {
			continue
		}

		rawURL := titleMatch[1]
		title := cleanHTMLText(titleMatch[2])

		snippetMatch := snippetPattern.FindStringSubmatch(resultHTML)
		snippet := ""
		if len(snippetMatch) >= 2 {
			snippet = cleanHTMLText(snippetMatch[1])
		}

		// DuckDuckGo links through redirect URLs
		finalURL := extractFinalURL(rawURL)
		if finalURL == "" {
			continue
		}

		results = append(results, Result{
			URL:     finalURL,
			Title:   title,
			Snippet: snippet,
			Domain:  extractDomain(finalURL),
			Source:  "DuckDuckGo",
			Rank:    i + 1,
		})
	}

	return results
}

// extractFinalURL extracts the actual URL from DuckDuckGo's redirect URL
func extractFinalURL(redirectURL string) string {
	// DuckDuckGo uses URLs like: /l/?uddg=https%3A//example.com/...&rut=...
	if strings.HasPrefix(redirectURL, "/l/?") || strings.HasPrefix(redirectURL, "//duckduckgo.com/l/?") {
		parsed, err := url.Parse(redirectURL)
		if err != nil {
			return ""
		}

		uddg := parsed.Query().Get("uddg")
		if uddg != "" {
			decoded, err := url.QueryUnescape(uddg)
			if err != nil {
				return ""
			}
			return decoded
		}
	}

	// If it's already a full URL, return as-is
	if strings.HasPrefix(redirectURL, "http") {
		return redirectURL
	}

	return ""
}

// extractDomain extracts the domain name from a URL
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// cleanHTMLText removes HTML tags and decodes HTML entities
func cleanHTMLText(text string) string {
	tagPattern := regexp.MustCompile(`<[^>]*>`)
	text = tagPattern.ReplaceAllString(text, "")

	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
