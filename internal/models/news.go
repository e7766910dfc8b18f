package models

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// FetchType selects how a news source is harvested.
type FetchType string

const (
	FetchTypeFeed    FetchType = "rss"
	FetchTypeCrawler FetchType = "crawler"
)

// NewsSource is one entry of the news-sources config file.
type NewsSource struct {
	Name      string    `json:"name" yaml:"name"`
	Company   string    `json:"company,omitempty" yaml:"company"`
	BlogURL   string    `json:"blog_url,omitempty" yaml:"blog_url"`
	FetchType FetchType `json:"fetch_type" yaml:"fetch_type"`
	RSSURL    string    `json:"rss_url,omitempty" yaml:"rss_url"`
	Extractor string    `json:"extractor,omitempty" yaml:"extractor"`
	JSRender  bool      `json:"js_render,omitempty" yaml:"js_render"`
	Language  string    `json:"language" yaml:"language"`
	Weight    float64   `json:"weight" yaml:"weight"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
}

// NewsItem is one ingested news link. The ID is the first 16 hex chars of
// MD5(url) so the same URL maps to the same ID across runs.
type NewsItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	SourceName     string    `json:"source_name"`
	SourceCategory string    `json:"source_category,omitempty"`
	Language       string    `json:"language,omitempty"`
	Published      time.Time `json:"published"`
	Weight         float64   `json:"weight"`
	Summary        string    `json:"summary,omitempty"`
	Content        string    `json:"content,omitempty"`
	FetchType      FetchType `json:"fetch_type,omitempty"`
	Company        string    `json:"company,omitempty"`
}

// NewsID derives the stable item ID from a URL.
func NewsID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// NewsLightAnalysis is the structured single-shot summary of one news item.
type NewsLightAnalysis struct {
	Summary   string   `json:"summary"`
	Category  string   `json:"category"`
	Sentiment string   `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

// AnalyzedNews is a NewsItem plus its light-analysis envelope.
type AnalyzedNews struct {
	NewsItem

	LightAnalysis  *NewsLightAnalysis `json:"light_analysis,omitempty"`
	AnalyzedAt     *time.Time         `json:"analyzed_at,omitempty"`
	AnalysisStatus string             `json:"analysis_status"`
	AnalysisError  string             `json:"analysis_error,omitempty"`
}

// IsAnalyzed reports whether the item carries a successful analysis.
func (n AnalyzedNews) IsAnalyzed() bool {
	return n.AnalysisStatus == StatusSuccess && n.LightAnalysis != nil
}
