// Package analyze performs single-shot structured "light" analysis of
// papers and news items: one LLM call per item, bounded by one
// process-wide concurrency cap shared by every batch.
package analyze

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"insight/internal/llm"
	"insight/internal/logger"
)

// Analyzer describes one item family: how to prompt for it and how to
// wrap the outcome. Analysis is the structured payload the model returns.
type Analyzer[In, Analysis, Out any] interface {
	ItemID(item In) string
	SystemPrompt() string
	UserContent(item In) string
	Schema() *genai.Schema
	Success(item In, analysis Analysis, at time.Time) Out
	Failure(item In, errMsg string) Out
}

// Stats summarizes one batch run.
type Stats struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// The cap is process-wide: concurrent paper and news batches share it.
var (
	semOnce   sync.Once
	globalSem *semaphore.Weighted
)

func acquireSlot(ctx context.Context, maxConcurrent int) (release func(), err error) {
	semOnce.Do(func() {
		if maxConcurrent <= 0 {
			maxConcurrent = 20
		}
		globalSem = semaphore.NewWeighted(int64(maxConcurrent))
	})
	if err := globalSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { globalSem.Release(1) }, nil
}

// ResetConcurrencyLimit clears the process-wide cap (tests).
func ResetConcurrencyLimit() {
	semOnce = sync.Once{}
	globalSem = nil
}

// Runner fans a batch out over the shared concurrency cap and collects
// outputs in input order. A per-item failure becomes a failed output,
// never an aborted batch.
type Runner[In, Analysis, Out any] struct {
	svc           llm.Service
	analyzer      Analyzer[In, Analysis, Out]
	maxConcurrent int
	timeout       time.Duration
	temperature   float32
}

// NewRunner builds a runner with the given per-item timeout.
func NewRunner[In, Analysis, Out any](svc llm.Service, analyzer Analyzer[In, Analysis, Out], maxConcurrent int, timeout time.Duration) *Runner[In, Analysis, Out] {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner[In, Analysis, Out]{
		svc:           svc,
		analyzer:      analyzer,
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		temperature:   0.3,
	}
}

// Run analyzes the batch and returns outputs aligned with the input
// order, plus batch stats.
func (r *Runner[In, Analysis, Out]) Run(ctx context.Context, items []In) ([]Out, Stats) {
	outputs := make([]Out, len(items))
	var succeeded sync.Map

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(slot int, item In) {
			defer wg.Done()
			out, ok := r.runOne(ctx, item)
			outputs[slot] = out
			if ok {
				succeeded.Store(slot, true)
			}
		}(i, items[i])
	}
	wg.Wait()

	stats := Stats{Total: len(items)}
	succeeded.Range(func(_, _ any) bool {
		stats.Success++
		return true
	})
	stats.Failed = stats.Total - stats.Success
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
	}

	logger.Info("Light analysis batch complete",
		"total", stats.Total, "success", stats.Success, "failed", stats.Failed)
	return outputs, stats
}

func (r *Runner[In, Analysis, Out]) runOne(ctx context.Context, item In) (Out, bool) {
	id := r.analyzer.ItemID(item)

	release, err := acquireSlot(ctx, r.maxConcurrent)
	if err != nil {
		return r.analyzer.Failure(item, errorMessage(err)), false
	}
	defer release()

	itemCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs := []llm.Message{
		llm.System(r.analyzer.SystemPrompt()),
		llm.User(r.analyzer.UserContent(item)),
	}

	var analysis Analysis
	if err := r.svc.ChatStructured(itemCtx, msgs, r.analyzer.Schema(), &analysis, llm.WithTemperature(r.temperature)); err != nil {
		logger.Warn("Light analysis failed", "id", id, "error", err.Error())
		return r.analyzer.Failure(item, errorMessage(err)), false
	}

	return r.analyzer.Success(item, analysis, time.Now().UTC()), true
}

// errorMessage renders the stored analysis_error: parse and rate-limit
// failures keep their detail, everything else records the error class.
func errorMessage(err error) string {
	switch {
	case llm.IsParse(err):
		return "JSON parse failed: " + err.Error()
	case llm.IsRateLimit(err):
		return "API rate limited: " + err.Error()
	default:
		return llm.KindOf(err).String()
	}
}
