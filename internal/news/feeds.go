package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"

	"insight/internal/logger"
	"insight/internal/models"
)

const feedUserAgent = "insight/1.0 (news ingestion)"

// summaryMaxChars truncates sanitized feed summaries.
const summaryMaxChars = 500

// FeedFetcher harvests the feed-family sources over one shared HTTP
// session, bounded by a concurrency cap with per-source retries.
type FeedFetcher struct {
	httpClient    *http.Client
	sem           *semaphore.Weighted
	maxRetries    int
}

// NewFeedFetcher builds a fetcher with the given timeout and concurrency cap.
func NewFeedFetcher(timeout time.Duration, maxConcurrent int) *FeedFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &FeedFetcher{
		httpClient: &http.Client{Timeout: timeout},
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		maxRetries: 3,
	}
}

// FetchAll fetches every source concurrently. Per-source failures are
// logged and excluded; the remaining sources still contribute items.
func (f *FeedFetcher) FetchAll(ctx context.Context, sources []models.NewsSource) []models.NewsItem {
	results := make([][]models.NewsItem, len(sources))

	done := make(chan int, len(sources))
	for i, source := range sources {
		go func(slot int, src models.NewsSource) {
			defer func() { done <- slot }()
			items, err := f.fetchSource(ctx, src)
			if err != nil {
				logger.Error("Feed fetch failed", err, "source", src.Name)
				return
			}
			results[slot] = items
		}(i, source)
	}
	for range sources {
		<-done
	}

	var all []models.NewsItem
	for _, items := range results {
		all = append(all, items...)
	}
	return all
}

// fetchSource downloads one feed with retries and maps its entries.
func (f *FeedFetcher) fetchSource(ctx context.Context, source models.NewsSource) ([]models.NewsItem, error) {
	if source.RSSURL == "" {
		return nil, fmt.Errorf("source %s has no feed URL", source.Name)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	var body []byte
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		body, lastErr = f.download(ctx, source.RSSURL)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	items, err := parseFeed(body, source)
	if err != nil {
		return nil, err
	}

	logger.Debug("Feed fetched", "source", source.Name, "items", len(items))
	return items, nil
}

func (f *FeedFetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", feedUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Feed wire structs covering RSS 2.0 and Atom.

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []feedEntry `xml:"item"`
	} `xml:"channel"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []feedEntry `xml:"entry"`
}

type feedEntry struct {
	Title       string     `xml:"title"`
	Links       []feedLink `xml:"link"`
	GUID        string     `xml:"guid"`
	ID          string     `xml:"id"`
	PubDate     string     `xml:"pubDate"`
	Published   string     `xml:"published"`
	Updated     string     `xml:"updated"`
	Created     string     `xml:"created"`
	DCDate      string     `xml:"date"`
	Description string     `xml:"description"`
	Summary     string     `xml:"summary"`
	Content     string     `xml:"encoded"`
	AtomContent string     `xml:"content"`
}

// feedLink covers both link shapes: RSS carries the URL as element text,
// Atom as an href attribute with an optional rel.
type feedLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Text string `xml:",chardata"`
}

// parseFeed handles both RSS and Atom payloads.
func parseFeed(body []byte, source models.NewsSource) ([]models.NewsItem, error) {
	var entries []feedEntry

	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		entries = rss.Channel.Items
	} else {
		var atom atomDocument
		if err := xml.Unmarshal(body, &atom); err != nil {
			return nil, fmt.Errorf("unparseable feed: %w", err)
		}
		entries = atom.Entries
	}

	items := make([]models.NewsItem, 0, len(entries))
	for _, entry := range entries {
		item, ok := entryToItem(entry, source)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// entryToItem maps one feed entry to a NewsItem. Entries without a title
// or URL are skipped.
func entryToItem(entry feedEntry, source models.NewsSource) (models.NewsItem, bool) {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return models.NewsItem{}, false
	}

	url := entryURL(entry)
	if url == "" {
		return models.NewsItem{}, false
	}

	summary := entry.Summary
	if summary == "" {
		summary = entry.Description
	}
	summary = truncate(sanitizeHTML(summary), summaryMaxChars)

	content := entry.Content
	if content == "" {
		content = entry.AtomContent
	}
	content = sanitizeHTML(content)

	return models.NewsItem{
		ID:         models.NewsID(url),
		Title:      title,
		URL:        url,
		SourceName: source.Name,
		Language:   source.Language,
		Published:  entryPublished(entry),
		Weight:     source.Weight,
		Summary:    summary,
		Content:    content,
		FetchType:  models.FetchTypeFeed,
		Company:    source.Company,
	}, true
}

// entryURL prefers the RSS link text, then an Atom alternate href,
// falling back to guid/id when no link carries a URL.
func entryURL(entry feedEntry) string {
	for _, l := range entry.Links {
		if text := strings.TrimSpace(l.Text); text != "" {
			return text
		}
	}
	for _, l := range entry.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			if href := strings.TrimSpace(l.Href); href != "" {
				return href
			}
		}
	}
	if guid := strings.TrimSpace(entry.GUID); strings.HasPrefix(guid, "http") {
		return guid
	}
	if id := strings.TrimSpace(entry.ID); strings.HasPrefix(id, "http") {
		return id
	}
	return ""
}

// feedDateFormats is the fallback list tried in order.
var feedDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02",
}

// entryPublished picks published || updated || created || dc:date; an
// unparseable or missing date falls back to now.
func entryPublished(entry feedEntry) time.Time {
	for _, candidate := range []string{entry.PubDate, entry.Published, entry.Updated, entry.Created, entry.DCDate} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, format := range feedDateFormats {
			if ts, err := time.Parse(format, candidate); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// sanitizeHTML strips tags and collapses whitespace, returning plain text.
func sanitizeHTML(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return normalizeSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeSpace(fragment)
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
