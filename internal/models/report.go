package models

import "time"

// DailyStats aggregates counts over one day of analyzed content.
type DailyStats struct {
	TotalPapers      int            `json:"total_papers"`
	PapersByCategory map[string]int `json:"papers_by_category"`
	TotalNews        int            `json:"total_news"`
	NewsByCategory   map[string]int `json:"news_by_category"`
	TopKeywords      []string       `json:"top_keywords"`
}

// DailyReport is the generated report persisted to reports/{date}.json.
type DailyReport struct {
	Date              string            `json:"date"`
	Summary           string            `json:"summary"`
	CategorySummaries map[string]string `json:"category_summaries"`
	NewsSummary       string            `json:"news_summary"`
	Stats             DailyStats        `json:"stats"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// PaperCount returns the total paper count from the stats block.
func (r DailyReport) PaperCount() int { return r.Stats.TotalPapers }

// NewsCount returns the total news count from the stats block.
func (r DailyReport) NewsCount() int { return r.Stats.TotalNews }

// DeepAnalysisResult is the outcome of one deep-analysis run.
type DeepAnalysisResult struct {
	RunID               string        `json:"run_id"`
	PaperID             string        `json:"paper_id"`
	Report              string        `json:"report"`
	ResearchIterations  int           `json:"research_iterations"`
	WriteIterations     int           `json:"write_iterations"`
	FulltextParseStatus string        `json:"fulltext_parse_status"`
	SectionCount        int           `json:"section_count"`
	Duration            time.Duration `json:"duration"`
	Provider            string        `json:"provider"`
	Model               string        `json:"model"`
}

// FileList is the JSON catalog consumed by the static site.
type FileList struct {
	Papers      []string `json:"papers"`
	News        []string `json:"news"`
	Reports     []string `json:"reports"`
	LastUpdated string   `json:"last_updated"`
}
