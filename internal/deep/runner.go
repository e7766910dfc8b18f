package deep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight/internal/arxiv"
	"insight/internal/config"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/models"
	"insight/internal/search"
	"insight/internal/storage"
)

// ErrPaperNotFound means the requested arXiv id has no entry.
var ErrPaperNotFound = errors.New("paper not found on arXiv")

// issueTitlePattern matches "[Analysis] 2501.12345: Some Title" with an
// optional version suffix on the id.
var issueTitlePattern = regexp.MustCompile(`(?i)\[analysis\]\s*(\d+\.\d+)(?:v\d+)?:\s*(.+)`)

// ParseIssueTitle extracts (paper id, title) from a deep-analysis issue
// title.
func ParseIssueTitle(title string) (paperID, paperTitle string, ok bool) {
	m := issueTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// Runner prepares the state, drives the graph and persists the result.
type Runner struct {
	cfg         *config.Config
	svc         llm.Service
	arxivClient *arxiv.Client
	dataDir     string
}

// NewRunner builds a deep-analysis runner from the loaded config.
func NewRunner(cfg *config.Config, svc llm.Service) *Runner {
	return &Runner{
		cfg:         cfg,
		svc:         svc,
		arxivClient: arxiv.NewClient(cfg.Arxiv),
		dataDir:     cfg.App.DataDir,
	}
}

// Analyze runs the whole deep analysis for one paper: metadata lookup,
// fulltext preprocessing, the graph, and report persistence. The
// "currently processing" marker is cleared even when the run fails.
func (r *Runner) Analyze(ctx context.Context, paperID, requirements string) (result *models.DeepAnalysisResult, err error) {
	started := time.Now()
	runID := uuid.NewString()

	if err := storage.MarkDeepProcessing(r.dataDir, paperID); err != nil {
		logger.Warn("Failed to record processing status", "error", err.Error())
	}
	defer func() {
		if clearErr := storage.ClearDeepProcessing(r.dataDir, paperID); clearErr != nil {
			logger.Warn("Failed to clear processing status", "error", clearErr.Error())
		}
	}()

	papers, err := r.arxivClient.FetchByIDs(ctx, []string{arxiv.CanonicalID(paperID)})
	if err != nil {
		return nil, fmt.Errorf("arxiv lookup for %s: %w", paperID, err)
	}
	if len(papers) == 0 || papers[0].Title == "" {
		return nil, fmt.Errorf("%w: %s", ErrPaperNotFound, paperID)
	}
	paper := papers[0]

	// Fulltext preprocessing is mandatory: without a parsed paper the
	// graph has nothing trustworthy to analyze.
	fulltext, err := r.arxivClient.FetchHTMLFulltext(ctx, paper.ID)
	if err != nil {
		return nil, fmt.Errorf("fulltext preprocessing for %s: %w", paper.ID, err)
	}

	if r.cfg.App.Debug {
		r.dumpFulltext(fulltext)
	}

	state := NewState(paper.ID, paper.Title, paper.Abstract, requirements,
		r.cfg.Analysis.MaxResearchIterations, r.cfg.Analysis.MaxWriteIterations)
	state.PaperHTMLURL = fulltext.Source.URL
	state.PaperFullContent = arxiv.SummaryContext(fulltext)
	state.PaperSectionsAvailable = true
	state.PaperTotalSections = fulltext.SectionCount()
	state.FulltextParseStatus = models.StatusSuccess

	primary, fallback, err := r.searchBackends()
	if err != nil {
		return nil, err
	}

	graph := NewGraph(r.svc, primary, fallback, r.arxivClient, arxiv.NewReader(fulltext))
	if err := graph.Run(ctx, state); err != nil {
		return nil, fmt.Errorf("deep analysis of %s: %w", paper.ID, err)
	}

	result = &models.DeepAnalysisResult{
		RunID:               runID,
		PaperID:             paper.ID,
		Report:              state.FinalReport,
		ResearchIterations:  state.ResearchIterations,
		WriteIterations:     state.WriteIterations,
		FulltextParseStatus: state.FulltextParseStatus,
		SectionCount:        state.PaperTotalSections,
		Duration:            time.Since(started),
		Provider:            r.cfg.LLM.Provider,
		Model:               r.cfg.LLM.Model,
	}

	if err := r.writeReport(paper, state, result); err != nil {
		return nil, err
	}

	logger.Info("Deep analysis complete", "paper_id", paper.ID, "run_id", runID,
		"research_iterations", result.ResearchIterations,
		"write_iterations", result.WriteIterations,
		"duration", result.Duration.String())
	return result, nil
}

// dumpFulltext writes the parsed fulltext tree next to the data files
// for debugging. Failures only log.
func (r *Runner) dumpFulltext(fulltext *models.ArxivHTMLFulltext) {
	raw, err := json.MarshalIndent(fulltext, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(r.dataDir, "arxiv_html_fulltext_"+fulltext.PaperID+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Warn("Failed to write fulltext dump", "path", path, "error", err.Error())
	}
}

// searchBackends picks the primary provider from config and keeps
// DuckDuckGo as the fallback when the primary is keyed.
func (r *Runner) searchBackends() (primary, fallback search.Provider, err error) {
	primary, err = search.NewProvider(r.cfg.Search)
	if err != nil {
		return nil, nil, err
	}
	if primary.Name() != "DuckDuckGo" {
		timeout := time.Duration(r.cfg.Search.Timeout) * time.Second
		fallback = search.NewDuckDuckGoProvider(r.cfg.Search.MaxResults, timeout)
	}
	return primary, fallback, nil
}

// writeReport persists the Markdown report with a small metadata header.
func (r *Runner) writeReport(paper models.Paper, state *State, result *models.DeepAnalysisResult) error {
	path := storage.DeepReportPath(r.dataDir, paper.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", paper.Title)
	fmt.Fprintf(&b, "- arXiv: [%s](%s)\n", paper.ID, paper.AbsURL)
	fmt.Fprintf(&b, "- analyzed: %s\n", state.AnalysisStartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- run: %s (%s/%s)\n\n", result.RunID, result.Provider, result.Model)
	b.WriteString(state.FinalReport)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write deep report: %w", err)
	}
	return nil
}
