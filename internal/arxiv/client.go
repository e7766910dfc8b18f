// Package arxiv fetches papers from the arXiv export API and the official
// HTML fulltext host. All API traffic goes through a single-capacity gate
// with a minimum spacing between requests, per arXiv's rate rules.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"insight/internal/config"
	"insight/internal/logger"
	"insight/internal/models"
)

const (
	defaultAPIBase = "http://export.arxiv.org/api/query"
	userAgent      = "insight/1.0 (research intelligence pipeline)"

	// defaultRateLimitWait is the fixed wait after a 429 response.
	defaultRateLimitWait = 30 * time.Second
)

var versionSuffix = regexp.MustCompile(`v\d+$`)

// Client is the arXiv export API client.
type Client struct {
	apiBase       string
	httpClient    *http.Client
	maxResults    int
	maxPages      int
	maxRetries    int
	rateLimitWait time.Duration
	gate          *requestGate
}

// NewClient builds a client from the arxiv config section.
func NewClient(cfg config.Arxiv) *Client {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	timeout := time.Duration(cfg.Timeout * float64(time.Second))
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	delay := time.Duration(cfg.RequestDelay * float64(time.Second))

	return &Client{
		apiBase:       defaultAPIBase,
		httpClient:    &http.Client{Timeout: timeout},
		maxResults:    maxResults,
		maxPages:      maxPages,
		maxRetries:    3,
		rateLimitWait: defaultRateLimitWait,
		gate:          newRequestGate(delay),
	}
}

// SetAPIBase overrides the API endpoint (tests).
func (c *Client) SetAPIBase(base string) { c.apiBase = base }

// SetRateLimitWait overrides the fixed 429 wait (tests).
func (c *Client) SetRateLimitWait(d time.Duration) { c.rateLimitWait = d }

// FetchRecent returns papers from the given categories whose
// max(published, updated) falls within the last `hours` hours and whose
// primary category is one of the requested ones. Categories are fetched
// concurrently but serialized by the request gate; a category that
// exhausts retries is logged and excluded.
func (c *Client) FetchRecent(ctx context.Context, categories []string, hours int) ([]models.Paper, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	results := make([][]models.Paper, len(categories))
	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(slot int, cat string) {
			defer wg.Done()
			papers, err := c.fetchCategory(ctx, cat, cutoff)
			if err != nil {
				logger.Error("Category fetch failed, excluding", err, "category", cat)
				return
			}
			results[slot] = papers
		}(i, category)
	}
	wg.Wait()

	allowed := make(map[string]bool, len(categories))
	for _, cat := range categories {
		allowed[cat] = true
	}

	seen := map[string]bool{}
	var papers []models.Paper
	for _, categoryPapers := range results {
		for _, p := range categoryPapers {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			if !allowed[p.PrimaryCategory] {
				continue
			}
			if p.LatestTime().Before(cutoff) {
				continue
			}
			papers = append(papers, p)
		}
	}

	logger.Info("arXiv fetch complete", "categories", len(categories), "papers", len(papers))
	return papers, nil
}

// FetchByIDs returns the papers for the given ids via a single id_list
// query. Unknown ids are simply absent from the result.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]models.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("id_list", strings.Join(ids, ","))
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", len(ids)))

	feed, err := c.fetchPage(ctx, params)
	if err != nil {
		return nil, err
	}

	papers := make([]models.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, entry.toPaper())
	}
	return papers, nil
}

// fetchCategory paginates one category until a short page, a page older
// than the cutoff, or the page bound.
func (c *Client) fetchCategory(ctx context.Context, category string, cutoff time.Time) ([]models.Paper, error) {
	var papers []models.Paper

	for page := 0; page < c.maxPages; page++ {
		params := url.Values{}
		params.Set("search_query", "cat:"+category)
		params.Set("start", fmt.Sprintf("%d", page*c.maxResults))
		params.Set("max_results", fmt.Sprintf("%d", c.maxResults))
		params.Set("sortBy", "submittedDate")
		params.Set("sortOrder", "descending")

		feed, err := c.fetchPage(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("category %s page %d: %w", category, page, err)
		}

		var oldest time.Time
		for _, entry := range feed.Entries {
			p := entry.toPaper()
			if oldest.IsZero() || p.LatestTime().Before(oldest) {
				oldest = p.LatestTime()
			}
			papers = append(papers, p)
		}

		if len(feed.Entries) < c.maxResults {
			break
		}
		if !oldest.IsZero() && oldest.Before(cutoff) {
			break
		}
	}

	return papers, nil
}

// fetchPage performs one gated API request with the retry policy:
// 429 waits a fixed 30 s, transport errors and 5xx back off exponentially.
func (c *Client) fetchPage(ctx context.Context, params url.Values) (*atomFeed, error) {
	reqURL := c.apiBase + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.gate.acquire(ctx); err != nil {
			return nil, err
		}
		feed, retryable, err := c.doRequest(ctx, reqURL)
		c.gate.release()

		if err == nil {
			return feed, nil
		}
		lastErr = err
		if !retryable || attempt == c.maxRetries {
			break
		}

		wait := time.Duration(1<<uint(attempt)) * time.Second
		if isRateLimited(err) {
			wait = c.rateLimitWait
		}
		logger.Warn("arXiv request failed, retrying", "attempt", attempt, "wait", wait.String(), "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("arXiv API returned status %d", e.code)
}

func isRateLimited(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.code == http.StatusTooManyRequests
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*atomFeed, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors and timeouts are retryable
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &httpStatusError{code: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, true, &httpStatusError{code: resp.StatusCode}
	default:
		return nil, false, &httpStatusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, false, fmt.Errorf("failed to parse Atom feed: %w", err)
	}
	return &feed, false, nil
}

// requestGate serializes API requests and enforces a minimum spacing
// between the completion of one request and the start of the next.
type requestGate struct {
	sem   chan struct{}
	mu    sync.Mutex
	last  time.Time
	delay time.Duration
}

func newRequestGate(delay time.Duration) *requestGate {
	return &requestGate{sem: make(chan struct{}, 1), delay: delay}
}

func (g *requestGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	wait := g.delay - time.Since(g.last)
	g.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			<-g.sem
			return ctx.Err()
		}
	}
	return nil
}

func (g *requestGate) release() {
	g.mu.Lock()
	g.last = time.Now()
	g.mu.Unlock()
	<-g.sem
}

// Atom feed wire structs for the export API.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID              string         `xml:"id"`
	Title           string         `xml:"title"`
	Summary         string         `xml:"summary"`
	Published       string         `xml:"published"`
	Updated         string         `xml:"updated"`
	Authors         []atomAuthor   `xml:"author"`
	Categories      []atomCategory `xml:"category"`
	PrimaryCategory atomCategory   `xml:"primary_category"`
	Comment         string         `xml:"comment"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// toPaper maps an Atom entry to the Paper model: version suffix stripped,
// whitespace normalized, URLs derived from the canonical id.
func (e atomEntry) toPaper() models.Paper {
	id := CanonicalID(e.ID)

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	primary := e.PrimaryCategory.Term
	if primary == "" && len(categories) > 0 {
		primary = categories[0]
	}

	published, _ := time.Parse(time.RFC3339, e.Published)
	paper := models.Paper{
		ID:              id,
		Title:           normalizeSpace(e.Title),
		Abstract:        normalizeSpace(e.Summary),
		Authors:         authors,
		Categories:      categories,
		PrimaryCategory: primary,
		AbsURL:          "https://arxiv.org/abs/" + id,
		PDFURL:          "https://arxiv.org/pdf/" + id + ".pdf",
		Published:       published.UTC(),
		Comment:         normalizeSpace(e.Comment),
	}

	if updated, err := time.Parse(time.RFC3339, e.Updated); err == nil && !updated.IsZero() {
		u := updated.UTC()
		paper.Updated = &u
	}
	return paper
}

// CanonicalID extracts the arXiv id without version from an entry id URL
// like "http://arxiv.org/abs/2501.12345v2" or a bare id.
func CanonicalID(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

// EntryVersion extracts the version suffix ("v2") from an entry id URL, or
// empty when none is present.
func EntryVersion(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	return versionSuffix.FindString(id)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
