// Package pipeline runs the daily task chain: fetch arXiv papers and
// news, analyze them, generate the daily report, refresh the file index
// and send the notification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"insight/internal/analyze"
	"insight/internal/arxiv"
	"insight/internal/config"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/models"
	"insight/internal/news"
	"insight/internal/notify"
	"insight/internal/report"
	"insight/internal/storage"
	"insight/internal/tracker"
)

// Task names one pipeline phase.
type Task string

const (
	TaskArxiv          Task = "arxiv"
	TaskNews           Task = "rss"
	TaskAnalyze        Task = "analyze"
	TaskSummary        Task = "summary"
	TaskUpdateFileList Task = "update-file-list"
	TaskNotify         Task = "notify"
	TaskAll            Task = "all"
)

// allTasks is the run order of the full daily chain.
var allTasks = []Task{TaskArxiv, TaskNews, TaskAnalyze, TaskSummary, TaskUpdateFileList, TaskNotify}

// Status is the typed outcome of one task.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusConfigError  Status = "config_error"
	StatusNoNewContent Status = "no_new_content"
	StatusProcessError Status = "process_error"
)

// ExitCode maps a status to the process exit code. "No new content" is
// not a failure.
func (s Status) ExitCode() int {
	switch s {
	case StatusConfigError:
		return 1
	case StatusProcessError:
		return 3
	default:
		return 0
	}
}

// paperSource and newsSource are the two fetch backends, narrowed so
// tests can substitute them.
type paperSource interface {
	FetchRecent(ctx context.Context, categories []string, hours int) ([]models.Paper, error)
}

type newsSource interface {
	FetchAll(ctx context.Context, sources []models.NewsSource, knownIDs map[string]struct{}) []models.NewsItem
}

// Pipeline owns the wiring for one daily run.
type Pipeline struct {
	cfg     *config.Config
	svc     llm.Service
	dataDir string

	papers   paperSource
	news     newsSource
	notifier notify.Notifier

	now func() time.Time
}

// New wires the pipeline against the live backends.
func New(cfg *config.Config, svc llm.Service) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		svc:      svc,
		dataDir:  cfg.App.DataDir,
		papers:   arxiv.NewClient(cfg.Arxiv),
		news:     news.NewFetcher(cfg.News),
		notifier: notify.NewNotifier(cfg.Notification),
		now:      time.Now,
	}
}

// SetPaperSource replaces the arXiv backend. Test hook.
func (p *Pipeline) SetPaperSource(src paperSource) { p.papers = src }

// SetNewsSource replaces the news backend. Test hook.
func (p *Pipeline) SetNewsSource(src newsSource) { p.news = src }

// SetNotifier replaces the notification backend. Test hook.
func (p *Pipeline) SetNotifier(n notify.Notifier) { p.notifier = n }

// SetClock replaces the date source. Test hook.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

func (p *Pipeline) date() string {
	return p.now().UTC().Format(storage.DateFormat)
}

// Run executes one task, or the whole chain for TaskAll, and returns
// the aggregate status. In the chain, "no new content" from a fetch
// task does not stop the remaining tasks; a process error does.
func (p *Pipeline) Run(ctx context.Context, task Task) Status {
	if task != TaskAll {
		return p.runOne(ctx, task)
	}

	final := StatusSuccess
	for _, t := range allTasks {
		// Termination: finish the current phase, start no new one.
		if ctx.Err() != nil {
			logger.Warn("Run interrupted", "next_task", string(t))
			return StatusProcessError
		}
		status := p.runOne(ctx, t)
		switch status {
		case StatusProcessError, StatusConfigError:
			return status
		case StatusNoNewContent:
			if final == StatusSuccess {
				final = StatusNoNewContent
			}
		}
	}
	return final
}

func (p *Pipeline) runOne(ctx context.Context, task Task) Status {
	started := p.now()
	var status Status
	switch task {
	case TaskArxiv:
		status = p.runArxiv(ctx)
	case TaskNews:
		status = p.runNews(ctx)
	case TaskAnalyze:
		status = p.runAnalyze(ctx)
	case TaskSummary:
		status = p.runSummary(ctx)
	case TaskUpdateFileList:
		status = p.runUpdateFileList()
	case TaskNotify:
		status = p.runNotify(ctx)
	default:
		logger.Error("Unknown pipeline task", nil, "task", string(task))
		return StatusConfigError
	}

	logger.Info("Task finished", "task", string(task), "status", string(status),
		"duration", time.Since(started).Round(time.Millisecond).String())
	return status
}

// runArxiv fetches the daily paper window, merges it into the per-date
// file and records the ids as fetched.
func (p *Pipeline) runArxiv(ctx context.Context) Status {
	hours := config.ArxivWindowHours()
	fetched, err := p.papers.FetchRecent(ctx, p.cfg.Arxiv.Categories, hours)
	if err != nil {
		logger.Error("arXiv fetch failed", err)
		return StatusProcessError
	}

	t := tracker.Fetched(p.dataDir)
	known := t.PaperIDs()
	fresh := make([]models.Paper, 0, len(fetched))
	for _, paper := range fetched {
		if _, seen := known[paper.ID]; !seen {
			fresh = append(fresh, paper)
		}
	}
	if len(fresh) == 0 {
		logger.Info("No new papers in window", "hours", hours, "fetched", len(fetched))
		return StatusNoNewContent
	}

	incoming := make([]models.AnalyzedPaper, len(fresh))
	ids := make([]string, len(fresh))
	for i, paper := range fresh {
		incoming[i] = models.AnalyzedPaper{Paper: paper, AnalysisStatus: models.StatusPending}
		ids[i] = paper.ID
	}

	path := storage.PapersPath(p.dataDir, p.date())
	merged := storage.MergePapers(storage.ReadPapers(path), incoming)
	if err := storage.WritePapers(path, merged); err != nil {
		logger.Error("Failed to write papers file", err, "path", path)
		return StatusProcessError
	}

	if err := t.MarkPapers(ids); err != nil {
		logger.Warn("Failed to update fetched tracker", "error", err.Error())
	}
	if removed, err := t.Cleanup(); err == nil && removed > 0 {
		logger.Debug("Tracker retention cleanup", "removed", removed)
	}

	logger.Info("arXiv papers stored", "new", len(fresh), "total", len(merged))
	return StatusSuccess
}

// runNews ingests the configured feed and crawler sources.
func (p *Pipeline) runNews(ctx context.Context) Status {
	sources, err := news.LoadSources(p.cfg.App.SourcesFile)
	if err != nil {
		logger.Error("Failed to load news sources", err, "path", p.cfg.App.SourcesFile)
		return StatusProcessError
	}

	t := tracker.Fetched(p.dataDir)
	items := p.news.FetchAll(ctx, news.EnabledSources(sources), t.NewsIDs())
	if len(items) == 0 {
		logger.Info("No new news items")
		return StatusNoNewContent
	}

	incoming := make([]models.AnalyzedNews, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		incoming[i] = models.AnalyzedNews{NewsItem: item, AnalysisStatus: models.StatusPending}
		ids[i] = item.ID
	}

	path := storage.NewsPath(p.dataDir, p.date())
	merged := storage.MergeNews(storage.ReadNews(path), incoming)
	if err := storage.WriteNews(path, merged); err != nil {
		logger.Error("Failed to write news file", err, "path", path)
		return StatusProcessError
	}

	if err := t.MarkNews(ids); err != nil {
		logger.Warn("Failed to update fetched tracker", "error", err.Error())
	}

	logger.Info("News items stored", "new", len(items), "total", len(merged))
	return StatusSuccess
}

// runAnalyze fans the pending items of the day out to the LLM and
// merges the results back in place. Only successful analyses are
// recorded in the analyzed tracker.
func (p *Pipeline) runAnalyze(ctx context.Context) Status {
	date := p.date()
	papersPath := storage.PapersPath(p.dataDir, date)
	newsPath := storage.NewsPath(p.dataDir, date)

	papers := storage.ReadPapers(papersPath)
	newsItems := storage.ReadNews(newsPath)

	pendingPapers := analyze.PendingPapers(papers)
	pendingNews := analyze.PendingNews(newsItems)
	if len(pendingPapers) == 0 && len(pendingNews) == 0 {
		logger.Info("Nothing pending analysis", "date", date)
		return StatusNoNewContent
	}

	t := tracker.Analyzed(p.dataDir)

	if len(pendingPapers) > 0 {
		runner := analyze.NewPaperRunner(p.svc, p.cfg.Analysis)
		analyzed, stats := runner.Run(ctx, pendingPapers)
		merged := storage.MergePapers(papers, analyzed)
		if err := storage.WritePapers(papersPath, merged); err != nil {
			logger.Error("Failed to write analyzed papers", err)
			return StatusProcessError
		}
		if err := t.MarkPapers(successIDs(analyzed)); err != nil {
			logger.Warn("Failed to update analyzed tracker", "error", err.Error())
		}
		logger.Info("Paper analysis done", "total", stats.Total,
			"success", stats.Success, "failed", stats.Failed)
	}

	if len(pendingNews) > 0 {
		runner := analyze.NewNewsRunner(p.svc, p.cfg.Analysis)
		analyzed, stats := runner.Run(ctx, pendingNews)
		merged := storage.MergeNews(newsItems, analyzed)
		if err := storage.WriteNews(newsPath, merged); err != nil {
			logger.Error("Failed to write analyzed news", err)
			return StatusProcessError
		}
		if err := t.MarkNews(successNewsIDs(analyzed)); err != nil {
			logger.Warn("Failed to update analyzed tracker", "error", err.Error())
		}
		logger.Info("News analysis done", "total", stats.Total,
			"success", stats.Success, "failed", stats.Failed)
	}

	if removed, err := t.Cleanup(); err == nil && removed > 0 {
		logger.Debug("Tracker retention cleanup", "removed", removed)
	}
	return StatusSuccess
}

func successIDs(papers []models.AnalyzedPaper) []string {
	ids := make([]string, 0, len(papers))
	for _, paper := range papers {
		if paper.IsAnalyzed() {
			ids = append(ids, paper.ID)
		}
	}
	return ids
}

func successNewsIDs(items []models.AnalyzedNews) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsAnalyzed() {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// runSummary generates and stores the daily report.
func (p *Pipeline) runSummary(ctx context.Context) Status {
	date := p.date()
	papers := storage.ReadPapers(storage.PapersPath(p.dataDir, date))
	newsItems := storage.ReadNews(storage.NewsPath(p.dataDir, date))

	generator := report.NewGenerator(p.svc, p.cfg.Notification)
	daily, err := generator.Generate(ctx, date, papers, newsItems)
	if err != nil {
		logger.Error("Report generation failed", err)
		return StatusProcessError
	}

	if err := storage.WriteReport(storage.ReportPath(p.dataDir, date), *daily); err != nil {
		logger.Error("Failed to write daily report", err)
		return StatusProcessError
	}

	logger.Info("Daily report stored", "date", date,
		"papers", daily.PaperCount(), "news", daily.NewsCount())
	return StatusSuccess
}

// runUpdateFileList rewrites file-list.json from the data directories.
func (p *Pipeline) runUpdateFileList() Status {
	path, err := storage.WriteFileList(p.dataDir)
	if err != nil {
		logger.Error("Failed to write file list", err)
		return StatusProcessError
	}
	logger.Info("File list updated", "path", path)
	return StatusSuccess
}

// runNotify sends the day's report. Outbound delivery is best-effort:
// a notifier failure is logged, not propagated.
func (p *Pipeline) runNotify(ctx context.Context) Status {
	date := p.date()
	daily := storage.ReadReport(storage.ReportPath(p.dataDir, date))
	if daily == nil {
		logger.Warn("No report to notify about", "date", date)
		return StatusNoNewContent
	}

	papers := storage.ReadPapers(storage.PapersPath(p.dataDir, date))
	newsItems := storage.ReadNews(storage.NewsPath(p.dataDir, date))

	if err := p.notifier.SendDailyReport(ctx, daily, papers, newsItems); err != nil {
		logger.Warn("Notification failed", "error", err.Error())
	}
	return StatusSuccess
}

// ParseTask validates a --task flag value.
func ParseTask(s string) (Task, error) {
	switch Task(s) {
	case TaskArxiv, TaskNews, TaskAnalyze, TaskSummary, TaskUpdateFileList, TaskNotify, TaskAll:
		return Task(s), nil
	default:
		return "", fmt.Errorf("unknown task %q (expected arxiv, rss, analyze, summary, update-file-list, notify or all)", s)
	}
}
