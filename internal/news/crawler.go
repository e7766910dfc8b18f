package news

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"insight/internal/logger"
	"insight/internal/models"
)

// PageFetcher renders one page and returns its HTML. js, when non-empty,
// runs after navigation (scroll scripts for lazy-loaded lists).
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL, js string) (string, error)
}

// ChromeFetcher renders pages with a headless browser. A fresh browser
// context is created per page so one crashed tab cannot poison the rest.
type ChromeFetcher struct {
	headless bool
	timeout  time.Duration
}

// NewChromeFetcher builds a fetcher with the given per-page timeout.
func NewChromeFetcher(headless bool, timeout time.Duration) *ChromeFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeFetcher{headless: headless, timeout: timeout}
}

func (f *ChromeFetcher) FetchPage(ctx context.Context, pageURL, js string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 720),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.Sleep(time.Second),
	}
	if js != "" {
		actions = append(actions, chromedp.Evaluate(wrapAsync(js), nil,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", pageURL, err)
	}
	return html, nil
}

// wrapAsync makes top-level await valid in injected render scripts.
func wrapAsync(js string) string {
	return "(async () => {" + js + "})()"
}

// Crawler harvests the crawler-family sources through a PageFetcher.
// List pages and detail pages are bounded by independent semaphores so a
// slow detail sweep cannot starve list fetches.
type Crawler struct {
	fetcher   PageFetcher
	listSem   *semaphore.Weighted
	detailSem *semaphore.Weighted
}

// NewCrawler builds a crawler with the given list-page concurrency cap.
// Detail pages use the same cap on their own semaphore.
func NewCrawler(fetcher PageFetcher, maxConcurrent int) *Crawler {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Crawler{
		fetcher:   fetcher,
		listSem:   semaphore.NewWeighted(int64(maxConcurrent)),
		detailSem: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// FetchAll crawls every source concurrently. Per-source failures are
// logged and excluded.
func (c *Crawler) FetchAll(ctx context.Context, sources []models.NewsSource) []models.NewsItem {
	results := make([][]models.NewsItem, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(slot int, src models.NewsSource) {
			defer wg.Done()
			items, err := c.fetchSource(ctx, src)
			if err != nil {
				logger.Error("Crawl failed", err, "source", src.Name)
				return
			}
			results[slot] = items
		}(i, source)
	}
	wg.Wait()

	var all []models.NewsItem
	for _, items := range results {
		all = append(all, items...)
	}
	return all
}

// fetchSource renders the source's list page, extracts article rows, and
// enriches items from detail pages when the extractor defines one.
func (c *Crawler) fetchSource(ctx context.Context, source models.NewsSource) ([]models.NewsItem, error) {
	extractorName := source.Extractor
	if extractorName == "" {
		extractorName = source.Company
	}
	extractor, err := GetExtractor(extractorName)
	if err != nil {
		return nil, err
	}
	if source.BlogURL == "" {
		return nil, fmt.Errorf("source %s has no blog URL", source.Name)
	}

	js := ""
	if source.JSRender {
		js = extractor.ListJS
	}

	if err := c.listSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	html, err := c.fetcher.FetchPage(ctx, source.BlogURL, js)
	c.listSem.Release(1)
	if err != nil {
		return nil, err
	}

	rows, err := applySchema(html, extractor.ListSchema)
	if err != nil {
		return nil, err
	}

	items := rowsToItems(rows, extractor, source)
	if extractor.DetailSchema != nil {
		c.enrichFromDetailPages(ctx, items, extractor, source)
	}

	logger.Debug("Crawl complete", "source", source.Name, "items", len(items))
	return items, nil
}

// rowsToItems maps extracted rows to NewsItems: relative URLs resolved,
// off-pattern URLs dropped, duplicates within the page kept first.
func rowsToItems(rows []map[string]string, extractor *Extractor, source models.NewsSource) []models.NewsItem {
	seen := map[string]bool{}
	var items []models.NewsItem

	for _, row := range rows {
		title := normalizeSpace(row["title"])
		articleURL := resolveURL(extractor.BaseURL, row["url"])
		if title == "" || articleURL == "" {
			continue
		}
		if extractor.URLContains != "" && !strings.Contains(articleURL, extractor.URLContains) {
			continue
		}
		if seen[articleURL] {
			continue
		}
		seen[articleURL] = true

		items = append(items, models.NewsItem{
			ID:             models.NewsID(articleURL),
			Title:          title,
			URL:            articleURL,
			SourceName:     source.Name,
			SourceCategory: "ai",
			Language:       source.Language,
			Published:      parseArticleDate(row["date"], extractor.DateFormats),
			Weight:         source.Weight,
			Summary:        truncate(row["summary"], summaryMaxChars),
			FetchType:      models.FetchTypeCrawler,
			Company:        source.Company,
		})
	}
	return items
}

// enrichFromDetailPages fills item content from each article's own page.
// Detail failures leave the item without content rather than dropping it.
func (c *Crawler) enrichFromDetailPages(ctx context.Context, items []models.NewsItem, extractor *Extractor, source models.NewsSource) {
	js := ""
	if source.JSRender {
		js = extractor.DetailJS
	}

	var wg sync.WaitGroup
	for i := range items {
		if items[i].Content != "" {
			continue
		}
		wg.Add(1)
		go func(item *models.NewsItem) {
			defer wg.Done()
			if err := c.detailSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.detailSem.Release(1)

			html, err := c.fetcher.FetchPage(ctx, item.URL, js)
			if err != nil {
				logger.Warn("Detail fetch failed", "url", item.URL, "error", err.Error())
				return
			}
			rows, err := applySchema(html, *extractor.DetailSchema)
			if err != nil || len(rows) == 0 {
				return
			}
			if content := sanitizeHTML(rows[0]["content"]); content != "" {
				item.Content = content
			}
			if date := rows[0]["date"]; date != "" {
				item.Published = parseArticleDate(date, extractor.DateFormats)
			}
		}(&items[i])
	}
	wg.Wait()
}
