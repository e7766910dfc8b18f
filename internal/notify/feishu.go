package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"insight/internal/config"
	"insight/internal/logger"
	"insight/internal/models"
)

// summaryTruncateChars caps the report summary inside the card.
const summaryTruncateChars = 500

// FeishuNotifier sends interactive cards to a Feishu group webhook.
type FeishuNotifier struct {
	client     *http.Client
	webhookURL string
	siteURL    string
	repo       string
	language   string
	maxPapers  int
	maxNews    int
	maxRetries int
}

// NewFeishuNotifier builds the notifier from the notification config.
func NewFeishuNotifier(cfg config.Notification) *FeishuNotifier {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPapers := cfg.MaxPapers
	if maxPapers <= 0 {
		maxPapers = 10
	}
	maxNews := cfg.MaxNews
	if maxNews <= 0 {
		maxNews = 5
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	language := cfg.Language
	if language == "" {
		language = "zh"
	}

	repo := ""
	if owner, name := config.GitHubRepo(); owner != "" && name != "" {
		repo = owner + "/" + name
	}

	return &FeishuNotifier{
		client:     &http.Client{Timeout: timeout},
		webhookURL: cfg.FeishuWebhookURL,
		siteURL:    strings.TrimRight(cfg.SiteURL, "/"),
		repo:       repo,
		language:   language,
		maxPapers:  maxPapers,
		maxNews:    maxNews,
		maxRetries: maxRetries,
	}
}

// Card wire structs for the Feishu webhook.

type feishuMessage struct {
	MsgType string     `json:"msg_type"`
	Card    feishuCard `json:"card"`
}

type feishuCard struct {
	Header   feishuHeader    `json:"header"`
	Elements []feishuElement `json:"elements"`
}

type feishuHeader struct {
	Title    feishuText `json:"title"`
	Template string     `json:"template"`
}

type feishuText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type feishuElement struct {
	Tag     string         `json:"tag"`
	Content string         `json:"content,omitempty"`
	Actions []feishuButton `json:"actions,omitempty"`
}

type feishuButton struct {
	Tag  string     `json:"tag"`
	Text feishuText `json:"text"`
	URL  string     `json:"url"`
	Type string     `json:"type"`
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func markdownElement(content string) feishuElement {
	return feishuElement{Tag: "markdown", Content: content}
}

func hrElement() feishuElement { return feishuElement{Tag: "hr"} }

// SendDailyReport pushes the daily-report card: summary, top papers with
// deep-analysis issue links, top news, and site buttons.
func (f *FeishuNotifier) SendDailyReport(ctx context.Context, report *models.DailyReport, papers []models.AnalyzedPaper, news []models.AnalyzedNews) error {
	card := f.buildDailyCard(report, papers, news)
	return f.send(ctx, feishuMessage{MsgType: "interactive", Card: card})
}

// SendDeepAnalysis pushes a short card announcing one finished deep
// analysis.
func (f *FeishuNotifier) SendDeepAnalysis(ctx context.Context, result *models.DeepAnalysisResult, title, issueURL string) error {
	header := "Deep Analysis Complete"
	if f.language == "zh" {
		header = "深度分析完成"
	}

	content := fmt.Sprintf("**%s**\n%s\n\n- arXiv: [%s](https://arxiv.org/abs/%s)\n- research iterations: %d, write iterations: %d",
		title, truncateRunes(result.Report, summaryTruncateChars),
		result.PaperID, result.PaperID,
		result.ResearchIterations, result.WriteIterations)
	if issueURL != "" {
		content += fmt.Sprintf("\n- issue: %s", issueURL)
	}

	card := feishuCard{
		Header:   feishuHeader{Title: feishuText{Tag: "plain_text", Content: header}, Template: "green"},
		Elements: []feishuElement{markdownElement(content)},
	}
	return f.send(ctx, feishuMessage{MsgType: "interactive", Card: card})
}

func (f *FeishuNotifier) buildDailyCard(report *models.DailyReport, papers []models.AnalyzedPaper, news []models.AnalyzedNews) feishuCard {
	labels := cardLabels(f.language)

	header := feishuHeader{
		Title:    feishuText{Tag: "plain_text", Content: fmt.Sprintf("%s · %s", labels.title, report.Date)},
		Template: "blue",
	}

	elements := []feishuElement{
		markdownElement(fmt.Sprintf("**%s**\n%s", labels.summary, truncateRunes(report.Summary, summaryTruncateChars))),
		hrElement(),
		markdownElement(fmt.Sprintf("**%s** (%d)", labels.papers, report.Stats.TotalPapers)),
	}

	for i, p := range papers {
		if i >= f.maxPapers {
			break
		}
		line := fmt.Sprintf("%d. [%s](%s)", i+1, p.Title, p.AbsURL)
		if issueURL := IssueURL(f.repo, p.ID, p.Title); issueURL != "" {
			line += fmt.Sprintf(" · [%s](%s)", labels.deepAnalysis, issueURL)
		}
		elements = append(elements, markdownElement(line))
	}

	if len(news) > 0 {
		elements = append(elements, hrElement(),
			markdownElement(fmt.Sprintf("**%s** (%d)", labels.news, report.Stats.TotalNews)))
		for i, n := range news {
			if i >= f.maxNews {
				break
			}
			elements = append(elements, markdownElement(
				fmt.Sprintf("%d. [%s](%s) — %s", i+1, n.Title, n.URL, n.SourceName)))
		}
	}

	if f.siteURL != "" {
		elements = append(elements, hrElement(), feishuElement{
			Tag: "action",
			Actions: []feishuButton{
				{
					Tag:  "button",
					Text: feishuText{Tag: "plain_text", Content: labels.viewPapers},
					URL:  fmt.Sprintf("%s/#/papers?date=%s", f.siteURL, report.Date),
					Type: "primary",
				},
				{
					Tag:  "button",
					Text: feishuText{Tag: "plain_text", Content: labels.viewNews},
					URL:  fmt.Sprintf("%s/#/news?date=%s", f.siteURL, report.Date),
					Type: "default",
				},
			},
		})
	}

	return feishuCard{Header: header, Elements: elements}
}

type labels struct {
	title, summary, papers, news, deepAnalysis, viewPapers, viewNews string
}

func cardLabels(language string) labels {
	if language == "zh" {
		return labels{
			title:        "AI 研究日报",
			summary:      "今日摘要",
			papers:       "论文",
			news:         "行业动态",
			deepAnalysis: "深度分析",
			viewPapers:   "查看论文",
			viewNews:     "查看动态",
		}
	}
	return labels{
		title:        "AI Research Daily",
		summary:      "Summary",
		papers:       "Papers",
		news:         "Industry News",
		deepAnalysis: "deep analysis",
		viewPapers:   "View papers",
		viewNews:     "View news",
	}
}

// send posts the card with exponential backoff. A Feishu-level non-zero
// code counts as a failure and is retried.
func (f *FeishuNotifier) send(ctx context.Context, msg feishuMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			logger.Warn("Notification failed, retrying", "attempt", attempt, "wait", wait.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if lastErr = f.post(ctx, payload); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("feishu notification failed after %d retries: %w", f.maxRetries, lastErr)
}

func (f *FeishuNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var parsed feishuResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("unparseable webhook response: %w", err)
	}
	if parsed.Code != 0 {
		return fmt.Errorf("webhook rejected message: code=%d msg=%s", parsed.Code, parsed.Msg)
	}
	return nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// SetWebhookURL overrides the webhook endpoint (tests).
func (f *FeishuNotifier) SetWebhookURL(u string) { f.webhookURL = u }
