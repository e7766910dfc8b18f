package analyze

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"insight/internal/config"
	"insight/internal/llm"
	"insight/internal/models"
)

const newsSystemPrompt = `You are an AI industry analyst. Given one news article from an AI company blog or feed, produce a concise structured analysis in English.

Rules:
- summary: 2-3 sentences capturing the announcement and why it matters
- category: one of "product", "research", "business", "policy", "other"
- sentiment: one of "positive", "neutral", "negative" for the AI field
- keywords: 3-6 short lowercase keywords

Use only the provided text. Do not speculate beyond it.`

var newsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":   {Type: genai.TypeString},
		"category":  {Type: genai.TypeString},
		"sentiment": {Type: genai.TypeString},
		"keywords": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"summary", "category", "sentiment", "keywords"},
}

// newsContentMaxChars caps how much article body goes into the prompt.
const newsContentMaxChars = 8000

// NewsAnalyzer produces the light analysis of one news item.
type NewsAnalyzer struct{}

func (NewsAnalyzer) ItemID(n models.NewsItem) string { return n.ID }

func (NewsAnalyzer) SystemPrompt() string { return newsSystemPrompt }

func (NewsAnalyzer) UserContent(n models.NewsItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", n.Title)
	fmt.Fprintf(&b, "Source: %s\n", n.SourceName)
	if n.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", n.Company)
	}
	fmt.Fprintf(&b, "URL: %s\n", n.URL)
	if n.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", n.Summary)
	}
	if n.Content != "" {
		content := n.Content
		if runes := []rune(content); len(runes) > newsContentMaxChars {
			content = string(runes[:newsContentMaxChars])
		}
		fmt.Fprintf(&b, "\nContent:\n%s\n", content)
	}
	return b.String()
}

func (NewsAnalyzer) Schema() *genai.Schema { return newsSchema }

func (NewsAnalyzer) Success(n models.NewsItem, analysis models.NewsLightAnalysis, at time.Time) models.AnalyzedNews {
	return models.AnalyzedNews{
		NewsItem:       n,
		LightAnalysis:  &analysis,
		AnalyzedAt:     &at,
		AnalysisStatus: models.StatusSuccess,
	}
}

func (NewsAnalyzer) Failure(n models.NewsItem, errMsg string) models.AnalyzedNews {
	return models.AnalyzedNews{
		NewsItem:       n,
		AnalysisStatus: models.StatusFailed,
		AnalysisError:  errMsg,
	}
}

// NewNewsRunner builds the news batch runner from config.
func NewNewsRunner(svc llm.Service, cfg config.Analysis) *Runner[models.NewsItem, models.NewsLightAnalysis, models.AnalyzedNews] {
	return NewRunner[models.NewsItem, models.NewsLightAnalysis, models.AnalyzedNews](
		svc, NewsAnalyzer{}, cfg.MaxConcurrent, time.Duration(cfg.Timeout)*time.Second)
}

// PendingNews filters a merged dataset down to the items that still need
// analysis.
func PendingNews(news []models.AnalyzedNews) []models.NewsItem {
	var pending []models.NewsItem
	for _, n := range news {
		if !n.IsAnalyzed() {
			pending = append(pending, n.NewsItem)
		}
	}
	return pending
}
