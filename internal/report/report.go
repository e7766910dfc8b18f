// Package report turns one day of analyzed papers and news into the
// daily report: per-category paper summaries, a news roundup, and an
// overall executive summary.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"insight/internal/config"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/models"
)

const (
	categorySystemPrompt = `You are an AI research analyst writing a daily digest. Summarize the day's papers in one arXiv category for a technical reader: name the common threads, call out the 2-3 most notable papers by title, and keep it to one tight paragraph.`

	newsSystemPrompt = `You are an AI industry analyst writing a daily digest. Summarize the day's AI industry news for a technical reader: group related announcements, name the companies involved, and keep it to one tight paragraph.`

	dailySystemPrompt = `You are the editor of a daily AI intelligence briefing. Given per-category research summaries and an industry news summary, write the executive summary: 3-5 sentences on the day's most important developments across research and industry.`
)

// summaryTemperature is used for the final executive summary; section
// summaries use the generator default.
const summaryTemperature = 0.7

// maxItemsPerSection caps how many items feed each section prompt.
const maxItemsPerSection = 20

// Generator builds daily reports.
type Generator struct {
	svc      llm.Service
	language string
}

// NewGenerator builds a generator. language follows the notification
// config ("zh" or "en").
func NewGenerator(svc llm.Service, cfg config.Notification) *Generator {
	language := cfg.Language
	if language == "" {
		language = "zh"
	}
	return &Generator{svc: svc, language: language}
}

// Generate builds the report for one date. Section summaries run
// concurrently; any LLM failure degrades that section to a plain
// template instead of failing the report.
func (g *Generator) Generate(ctx context.Context, date string, papers []models.AnalyzedPaper, news []models.AnalyzedNews) (*models.DailyReport, error) {
	papers = orderPapers(papers)
	news = orderNews(news)

	report := &models.DailyReport{
		Date:              date,
		CategorySummaries: map[string]string{},
		Stats:             buildStats(papers, news),
		GeneratedAt:       time.Now().UTC(),
	}

	byCategory := groupByCategory(papers)

	var mu sync.Mutex
	grp, grpCtx := errgroup.WithContext(ctx)

	for category, categoryPapers := range byCategory {
		grp.Go(func() error {
			summary := g.summarizeCategory(grpCtx, category, categoryPapers)
			mu.Lock()
			report.CategorySummaries[category] = summary
			mu.Unlock()
			return nil
		})
	}
	grp.Go(func() error {
		report.NewsSummary = g.summarizeNews(grpCtx, news)
		return nil
	})
	_ = grp.Wait()

	report.Summary = g.summarizeDay(ctx, report)

	logger.Info("Daily report generated", "date", date,
		"papers", report.Stats.TotalPapers, "news", report.Stats.TotalNews,
		"categories", len(report.CategorySummaries))
	return report, nil
}

// orderPapers puts analyzed papers first, newest first within each group.
func orderPapers(papers []models.AnalyzedPaper) []models.AnalyzedPaper {
	ordered := make([]models.AnalyzedPaper, len(papers))
	copy(ordered, papers)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i].IsAnalyzed(), ordered[j].IsAnalyzed()
		if ai != aj {
			return ai
		}
		return ordered[i].Published.After(ordered[j].Published)
	})
	return ordered
}

func orderNews(news []models.AnalyzedNews) []models.AnalyzedNews {
	ordered := make([]models.AnalyzedNews, len(news))
	copy(ordered, news)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i].IsAnalyzed(), ordered[j].IsAnalyzed()
		if ai != aj {
			return ai
		}
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight > ordered[j].Weight
		}
		return ordered[i].Published.After(ordered[j].Published)
	})
	return ordered
}

func groupByCategory(papers []models.AnalyzedPaper) map[string][]models.AnalyzedPaper {
	groups := map[string][]models.AnalyzedPaper{}
	for _, p := range papers {
		category := p.PrimaryCategory
		if category == "" {
			category = "other"
		}
		groups[category] = append(groups[category], p)
	}
	return groups
}

// buildStats aggregates histograms and the top-10 keyword list from
// paper tags and news keywords combined.
func buildStats(papers []models.AnalyzedPaper, news []models.AnalyzedNews) models.DailyStats {
	stats := models.DailyStats{
		TotalPapers:      len(papers),
		TotalNews:        len(news),
		PapersByCategory: map[string]int{},
		NewsByCategory:   map[string]int{},
	}

	keywordCounts := map[string]int{}
	for _, p := range papers {
		category := p.PrimaryCategory
		if category == "" {
			category = "other"
		}
		stats.PapersByCategory[category]++
		if p.LightAnalysis != nil {
			for _, tag := range p.LightAnalysis.Tags {
				keywordCounts[strings.ToLower(strings.TrimSpace(tag))]++
			}
		}
	}
	for _, n := range news {
		category := "other"
		if n.LightAnalysis != nil && n.LightAnalysis.Category != "" {
			category = n.LightAnalysis.Category
		}
		stats.NewsByCategory[category]++
		if n.LightAnalysis != nil {
			for _, kw := range n.LightAnalysis.Keywords {
				keywordCounts[strings.ToLower(strings.TrimSpace(kw))]++
			}
		}
	}
	delete(keywordCounts, "")

	keywords := make([]string, 0, len(keywordCounts))
	for kw := range keywordCounts {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywordCounts[keywords[i]] != keywordCounts[keywords[j]] {
			return keywordCounts[keywords[i]] > keywordCounts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	stats.TopKeywords = keywords
	return stats
}

func (g *Generator) summarizeCategory(ctx context.Context, category string, papers []models.AnalyzedPaper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\nDate's papers (%d total):\n\n", category, len(papers))
	for i, p := range papers {
		if i >= maxItemsPerSection {
			break
		}
		fmt.Fprintf(&b, "- %s\n", p.Title)
		if p.LightAnalysis != nil {
			fmt.Fprintf(&b, "  %s\n", p.LightAnalysis.Overview)
		}
	}
	b.WriteString(g.languageInstruction())

	summary, err := g.svc.Chat(ctx, []llm.Message{
		llm.System(categorySystemPrompt),
		llm.User(b.String()),
	})
	if err != nil {
		logger.Warn("Category summary failed, using fallback", "category", category, "error", err.Error())
		return fmt.Sprintf("%d papers in %s today.", len(papers), category)
	}
	return strings.TrimSpace(summary)
}

func (g *Generator) summarizeNews(ctx context.Context, news []models.AnalyzedNews) string {
	if len(news) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date's AI industry news (%d total):\n\n", len(news))
	for i, n := range news {
		if i >= maxItemsPerSection {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", n.SourceName, n.Title)
		if n.LightAnalysis != nil {
			fmt.Fprintf(&b, "  %s\n", n.LightAnalysis.Summary)
		}
	}
	b.WriteString(g.languageInstruction())

	summary, err := g.svc.Chat(ctx, []llm.Message{
		llm.System(newsSystemPrompt),
		llm.User(b.String()),
	})
	if err != nil {
		logger.Warn("News summary failed, using fallback", "error", err.Error())
		return fmt.Sprintf("%d news items today.", len(news))
	}
	return strings.TrimSpace(summary)
}

// summarizeDay writes the executive summary from the section summaries.
// When the model is unavailable it falls back to a counts template.
func (g *Generator) summarizeDay(ctx context.Context, report *models.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nPapers: %d, News: %d\n\n", report.Date, report.Stats.TotalPapers, report.Stats.TotalNews)
	for category, summary := range report.CategorySummaries {
		fmt.Fprintf(&b, "[%s] %s\n", category, summary)
	}
	if report.NewsSummary != "" {
		fmt.Fprintf(&b, "[news] %s\n", report.NewsSummary)
	}
	b.WriteString(g.languageInstruction())

	summary, err := g.svc.Chat(ctx, []llm.Message{
		llm.System(dailySystemPrompt),
		llm.User(b.String()),
	}, llm.WithTemperature(summaryTemperature))
	if err != nil {
		logger.Warn("Daily summary failed, using fallback", "error", err.Error())
		return fallbackSummary(report.Stats)
	}
	return strings.TrimSpace(summary)
}

func (g *Generator) languageInstruction() string {
	if g.language == "zh" {
		return "\nWrite the summary in Chinese.\n"
	}
	return "\nWrite the summary in English.\n"
}

// fallbackSummary renders the no-LLM template.
func fallbackSummary(stats models.DailyStats) string {
	categories := make([]string, 0, len(stats.PapersByCategory))
	for category := range stats.PapersByCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if stats.PapersByCategory[categories[i]] != stats.PapersByCategory[categories[j]] {
			return stats.PapersByCategory[categories[i]] > stats.PapersByCategory[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > 3 {
		categories = categories[:3]
	}
	summary := fmt.Sprintf("today: %d papers, %d news; top categories: %s",
		stats.TotalPapers, stats.TotalNews, strings.Join(categories, ", "))
	if len(stats.TopKeywords) > 0 {
		summary += "; top keywords: " + strings.Join(stats.TopKeywords, ", ")
	}
	return summary
}
