package news

import (
	"context"
	"sort"
	"time"

	"insight/internal/config"
	"insight/internal/logger"
	"insight/internal/models"
)

// Fetcher runs the full news ingest: both source families, the ingest
// window, batch and history dedup, and the final ordering.
type Fetcher struct {
	feeds   *FeedFetcher
	crawler *Crawler
	hours   int
}

// NewFetcher wires the ingest from the news config section.
func NewFetcher(cfg config.News) *Fetcher {
	hours := cfg.Hours
	if hours <= 0 {
		hours = 168
	}
	fetcher := NewChromeFetcher(cfg.Headless, time.Duration(cfg.CrawlerTimeout*float64(time.Second)))
	return &Fetcher{
		feeds:   NewFeedFetcher(time.Duration(cfg.RSSTimeout*float64(time.Second)), cfg.RSSMaxConcurrent),
		crawler: NewCrawler(fetcher, cfg.CrawlerMaxConcurrent),
		hours:   hours,
	}
}

// SetCrawlerFetcher swaps the page fetcher (tests).
func (f *Fetcher) SetCrawlerFetcher(fetcher PageFetcher) {
	f.crawler.fetcher = fetcher
}

// FetchAll ingests all enabled sources and returns the deduplicated,
// ordered batch. knownIDs holds previously ingested item ids; matching
// items are dropped (history dedup).
func (f *Fetcher) FetchAll(ctx context.Context, sources []models.NewsSource, knownIDs map[string]struct{}) []models.NewsItem {
	var feedSources, crawlerSources []models.NewsSource
	for _, s := range EnabledSources(sources) {
		switch s.FetchType {
		case models.FetchTypeCrawler:
			crawlerSources = append(crawlerSources, s)
		default:
			feedSources = append(feedSources, s)
		}
	}

	items := f.feeds.FetchAll(ctx, feedSources)
	items = append(items, f.crawler.FetchAll(ctx, crawlerSources)...)

	items = FilterWindow(items, f.hours)
	items = DedupBatch(items)
	items = DedupHistory(items, knownIDs)
	SortItems(items)

	logger.Info("News ingest complete",
		"feed_sources", len(feedSources),
		"crawler_sources", len(crawlerSources),
		"items", len(items))
	return items
}

// FilterWindow keeps items published within the last `hours` hours.
// Items with a zero published time are kept; the date may simply be
// missing from the source.
func FilterWindow(items []models.NewsItem, hours int) []models.NewsItem {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	kept := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if item.Published.IsZero() || !item.Published.Before(cutoff) {
			kept = append(kept, item)
		}
	}
	return kept
}

// DedupBatch drops in-batch duplicates by id; the first occurrence wins.
func DedupBatch(items []models.NewsItem) []models.NewsItem {
	seen := make(map[string]bool, len(items))
	kept := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		kept = append(kept, item)
	}
	return kept
}

// DedupHistory drops items already seen in previous runs.
func DedupHistory(items []models.NewsItem, knownIDs map[string]struct{}) []models.NewsItem {
	if len(knownIDs) == 0 {
		return items
	}
	kept := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if _, known := knownIDs[item.ID]; known {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// SortItems orders by weight descending, then published descending.
func SortItems(items []models.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Weight != items[j].Weight {
			return items[i].Weight > items[j].Weight
		}
		return items[i].Published.After(items[j].Published)
	})
}
