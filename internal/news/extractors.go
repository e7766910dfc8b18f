package news

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FieldType selects how a field value is pulled from a matched node.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldAttribute FieldType = "attribute"
)

// Field is one value extracted per list/detail entry.
type Field struct {
	Name      string
	Selector  string
	Type      FieldType
	Attribute string
}

// Schema drives CSS extraction: every node matching BaseSelector yields
// one row with the schema's fields.
type Schema struct {
	Name         string
	BaseSelector string
	Fields       []Field
}

// scrollJS is the render script used by sources that lazy-load their
// article lists.
const scrollJS = `
await new Promise(resolve => setTimeout(resolve, 2000));
window.scrollTo(0, document.body.scrollHeight / 2);
await new Promise(resolve => setTimeout(resolve, 1000));
window.scrollTo(0, document.body.scrollHeight);
await new Promise(resolve => setTimeout(resolve, 1000));
`

// Extractor is the per-site crawling recipe: list schema, optional
// detail-page schema, URL shape constraints, and date formats.
type Extractor struct {
	Name         string
	BaseURL      string
	URLContains  string
	ListSchema   Schema
	DetailSchema *Schema
	ListJS       string
	DetailJS     string
	DateFormats  []string
}

var commonDateFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// articleDetailSchema covers the usual blog detail layout.
var articleDetailSchema = Schema{
	Name:         "Article Detail",
	BaseSelector: "main, article",
	Fields: []Field{
		{Name: "title", Selector: "h1", Type: FieldText},
		{Name: "date", Selector: "time, .date", Type: FieldText},
		{Name: "content", Type: FieldText},
	},
}

var extractors = map[string]*Extractor{
	"anthropic": {
		Name:        "anthropic",
		BaseURL:     "https://www.anthropic.com",
		URLContains: "/news/",
		ListSchema: Schema{
			Name:         "Anthropic News",
			BaseSelector: "a[href^='/news/'], article, .post-card",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title, span", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date, span[class*='date']", Type: FieldText},
				{Name: "summary", Selector: "p, .description, .excerpt", Type: FieldText},
			},
		},
		DetailSchema: &articleDetailSchema,
		ListJS:       scrollJS,
		DetailJS:     scrollJS,
		DateFormats:  commonDateFormats,
	},
	"claude": {
		Name:        "claude",
		BaseURL:     "https://claude.com",
		URLContains: "/blog/",
		ListSchema: Schema{
			Name:         "Claude Blog Posts",
			BaseSelector: "a[href^='/blog/'], article, .post, .post-card",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title, span", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date, span[class*='date']", Type: FieldText},
				{Name: "summary", Selector: "p, .description, .excerpt", Type: FieldText},
			},
		},
		DetailSchema: &articleDetailSchema,
		ListJS:       scrollJS,
		DetailJS:     scrollJS,
		DateFormats:  commonDateFormats,
	},
	"cursor": {
		Name:        "cursor",
		BaseURL:     "https://cursor.com",
		URLContains: "/blog/",
		ListSchema: Schema{
			Name:         "Cursor Blog",
			BaseSelector: "a[href^='/blog/'], article",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date", Type: FieldText},
				{Name: "summary", Selector: "p", Type: FieldText},
			},
		},
		DetailSchema: &articleDetailSchema,
		ListJS:       scrollJS,
		DateFormats:  commonDateFormats,
	},
	"deepseek": {
		Name:        "deepseek",
		BaseURL:     "https://api-docs.deepseek.com",
		URLContains: "/news/",
		ListSchema: Schema{
			Name:         "DeepSeek News",
			BaseSelector: "article, .news-item, .post, a[href*='/news/']",
			Fields: []Field{
				{Name: "title", Selector: "h1, h2, h3, .title, a", Type: FieldText},
				{Name: "url", Selector: "a", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date, .meta, span", Type: FieldText},
				{Name: "summary", Selector: "p, .summary, .excerpt", Type: FieldText},
			},
		},
		DateFormats: commonDateFormats,
	},
	"deepmind": {
		Name:        "deepmind",
		BaseURL:     "https://deepmind.google",
		URLContains: "/blog/",
		ListSchema: Schema{
			Name:         "DeepMind Blog",
			BaseSelector: "a[href*='/blog/'], article, .card",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date", Type: FieldText},
				{Name: "summary", Selector: "p, .description", Type: FieldText},
			},
		},
		DetailSchema: &articleDetailSchema,
		ListJS:       scrollJS,
		DetailJS:     scrollJS,
		DateFormats:  commonDateFormats,
	},
	"gemini": {
		Name:        "gemini",
		BaseURL:     "https://blog.google",
		URLContains: "/technology/",
		ListSchema: Schema{
			Name:         "Gemini Blog",
			BaseSelector: "a[href*='/technology/'], article, .feed-article",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date", Type: FieldText},
				{Name: "summary", Selector: "p, .description", Type: FieldText},
			},
		},
		ListJS:      scrollJS,
		DateFormats: commonDateFormats,
	},
	"google_research": {
		Name:        "google_research",
		BaseURL:     "https://research.google",
		URLContains: "/blog/",
		ListSchema: Schema{
			Name:         "Google Research Blog",
			BaseSelector: "a[href*='/blog/'], article, .blog-card",
			Fields: []Field{
				{Name: "title", Selector: "h2, h3, .title", Type: FieldText},
				{Name: "url", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date", Type: FieldText},
				{Name: "summary", Selector: "p, .description", Type: FieldText},
			},
		},
		DateFormats: commonDateFormats,
	},
	"qwen": {
		Name:        "qwen",
		BaseURL:     "https://qwenlm.github.io",
		URLContains: "/blog/",
		ListSchema: Schema{
			Name:         "Qwen Blog",
			BaseSelector: "article, .post-entry, a[href*='/blog/']",
			Fields: []Field{
				{Name: "title", Selector: "h1, h2, .entry-header", Type: FieldText},
				{Name: "url", Selector: "a", Type: FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: "time, .date, footer", Type: FieldText},
				{Name: "summary", Selector: "p, .entry-content", Type: FieldText},
			},
		},
		DetailSchema: &articleDetailSchema,
		DateFormats:  commonDateFormats,
	},
}

// GetExtractor resolves the crawling recipe for a source identifier.
func GetExtractor(name string) (*Extractor, error) {
	ex, ok := extractors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown extractor: %s", name)
	}
	return ex, nil
}

// ListExtractors returns the known extractor names.
func ListExtractors() []string {
	names := make([]string, 0, len(extractors))
	for name := range extractors {
		names = append(names, name)
	}
	return names
}

// applySchema runs the extraction schema over rendered HTML: one row per
// BaseSelector match, one value per field. Missing fields yield "".
func applySchema(html string, schema Schema) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var rows []map[string]string
	doc.Find(schema.BaseSelector).Each(func(_ int, base *goquery.Selection) {
		row := make(map[string]string, len(schema.Fields))
		for _, field := range schema.Fields {
			target := base
			if field.Selector != "" {
				target = base.Find(field.Selector).First()
			}
			switch field.Type {
			case FieldAttribute:
				row[field.Name] = strings.TrimSpace(target.AttrOr(field.Attribute, ""))
			default:
				row[field.Name] = normalizeSpace(target.Text())
			}
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// resolveURL completes relative article URLs against the site base.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// parseArticleDate tries the extractor's formats, falling back to now so
// undated articles still land inside the ingest window.
func parseArticleDate(dateStr string, formats []string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Now().UTC()
	}
	for _, format := range formats {
		if ts, err := time.Parse(format, dateStr); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
