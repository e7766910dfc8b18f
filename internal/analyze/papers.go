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

const paperSystemPrompt = `You are an expert AI research analyst. Given an arXiv paper's title and abstract, produce a concise structured analysis in English.

Rules:
- overview: 2-3 sentences on what the paper is about
- motivation: the problem or gap the paper addresses
- method: the core technical approach
- result: the main experimental or theoretical findings
- conclusion: the takeaway and likely impact
- tags: 3-6 short lowercase topic tags (e.g. "reinforcement learning", "llm inference")

Ground every statement in the abstract. Do not invent results.`

var paperSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"overview":   {Type: genai.TypeString},
		"motivation": {Type: genai.TypeString},
		"method":     {Type: genai.TypeString},
		"result":     {Type: genai.TypeString},
		"conclusion": {Type: genai.TypeString},
		"tags": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"overview", "motivation", "method", "result", "conclusion", "tags"},
}

// PaperAnalyzer produces the light analysis of one paper.
type PaperAnalyzer struct{}

func (PaperAnalyzer) ItemID(p models.Paper) string { return p.ID }

func (PaperAnalyzer) SystemPrompt() string { return paperSystemPrompt }

func (PaperAnalyzer) UserContent(p models.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if len(p.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(p.Authors, ", "))
	}
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(p.Categories, ", "))
	}
	fmt.Fprintf(&b, "\nAbstract:\n%s\n", p.Abstract)
	return b.String()
}

func (PaperAnalyzer) Schema() *genai.Schema { return paperSchema }

func (PaperAnalyzer) Success(p models.Paper, analysis models.PaperLightAnalysis, at time.Time) models.AnalyzedPaper {
	return models.AnalyzedPaper{
		Paper:          p,
		LightAnalysis:  &analysis,
		AnalyzedAt:     &at,
		AnalysisStatus: models.StatusSuccess,
	}
}

func (PaperAnalyzer) Failure(p models.Paper, errMsg string) models.AnalyzedPaper {
	return models.AnalyzedPaper{
		Paper:          p,
		AnalysisStatus: models.StatusFailed,
		AnalysisError:  errMsg,
	}
}

// NewPaperRunner builds the paper batch runner from config.
func NewPaperRunner(svc llm.Service, cfg config.Analysis) *Runner[models.Paper, models.PaperLightAnalysis, models.AnalyzedPaper] {
	return NewRunner[models.Paper, models.PaperLightAnalysis, models.AnalyzedPaper](
		svc, PaperAnalyzer{}, cfg.MaxConcurrent, time.Duration(cfg.Timeout)*time.Second)
}

// PendingPapers filters a merged dataset down to the items that still
// need analysis: pending or previously failed records.
func PendingPapers(papers []models.AnalyzedPaper) []models.Paper {
	var pending []models.Paper
	for _, p := range papers {
		if !p.IsAnalyzed() {
			pending = append(pending, p.Paper)
		}
	}
	return pending
}
