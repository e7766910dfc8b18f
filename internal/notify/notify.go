// Package notify pushes daily reports and deep-analysis results to the
// configured channel. Feishu webhook cards are the only real backend; an
// unconfigured pipeline gets the no-op notifier.
package notify

import (
	"context"

	"insight/internal/config"
	"insight/internal/logger"
	"insight/internal/models"
)

// Notifier is an outbound notification channel.
type Notifier interface {
	SendDailyReport(ctx context.Context, report *models.DailyReport, papers []models.AnalyzedPaper, news []models.AnalyzedNews) error
	SendDeepAnalysis(ctx context.Context, result *models.DeepAnalysisResult, title, issueURL string) error
}

// NewNotifier returns the Feishu notifier when a webhook is configured,
// otherwise the no-op notifier.
func NewNotifier(cfg config.Notification) Notifier {
	if cfg.FeishuWebhookURL == "" {
		logger.Info("No notification webhook configured, notifications disabled")
		return Noop{}
	}
	return NewFeishuNotifier(cfg)
}

// Noop drops all notifications.
type Noop struct{}

func (Noop) SendDailyReport(context.Context, *models.DailyReport, []models.AnalyzedPaper, []models.AnalyzedNews) error {
	return nil
}

func (Noop) SendDeepAnalysis(context.Context, *models.DeepAnalysisResult, string, string) error {
	return nil
}
