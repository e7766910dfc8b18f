package arxiv

import (
	"fmt"
	"strings"

	"insight/internal/models"
)

// sectionSynonyms maps the friendly keys accepted by the paper_reader tool
// to heading substrings (case-insensitive).
var sectionSynonyms = map[string][]string{
	"abstract":     {"abstract"},
	"introduction": {"introduction", "overview"},
	"method":       {"method", "approach", "model", "architecture"},
	"experiment":   {"experiment", "setup", "implementation"},
	"results":      {"result", "evaluation", "performance"},
	"discussion":   {"discussion", "analysis", "limitation"},
	"conclusion":   {"conclusion", "summary", "future work"},
	"related_work": {"related work", "background", "prior work"},
}

const (
	keywordMaxExcerpts = 5
	keywordExcerptLen  = 500
)

// Reader is the query surface over a parsed fulltext, bound to one
// deep-analysis run.
type Reader struct {
	fulltext *models.ArxivHTMLFulltext
}

// NewReader wraps a parsed fulltext.
func NewReader(fulltext *models.ArxivHTMLFulltext) *Reader {
	return &Reader{fulltext: fulltext}
}

// Overview lists the title and the heading outline.
func (r *Reader) Overview() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", r.fulltext.Title)
	if r.fulltext.Abstract != "" {
		fmt.Fprintf(&b, "Abstract: %s\n", r.fulltext.Abstract)
	}
	b.WriteString("Sections:\n")

	var visit func(secs []models.ArxivHTMLSection, depth int)
	visit = func(secs []models.ArxivHTMLSection, depth int) {
		for _, sec := range secs {
			fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", depth), sec.Heading)
			visit(sec.Children, depth+1)
		}
	}
	visit(r.fulltext.Sections, 0)
	return b.String()
}

// Section returns the full text of the sections matching a friendly key
// such as "method" or "conclusion". Unknown keys are matched literally
// against headings.
func (r *Reader) Section(key string) (string, bool) {
	if key == "abstract" && r.fulltext.Abstract != "" {
		return r.fulltext.Abstract, true
	}

	needles := sectionSynonyms[strings.ToLower(key)]
	if needles == nil {
		needles = []string{strings.ToLower(key)}
	}

	var parts []string
	var visit func(secs []models.ArxivHTMLSection)
	visit = func(secs []models.ArxivHTMLSection) {
		for _, sec := range secs {
			heading := strings.ToLower(sec.Heading)
			matched := false
			for _, n := range needles {
				if strings.Contains(heading, n) {
					matched = true
					break
				}
			}
			if matched {
				parts = append(parts, renderSection(sec))
				continue
			}
			visit(sec.Children)
		}
	}
	visit(r.fulltext.Sections)

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

// Keyword returns up to five excerpts around matches of q across all
// section paragraphs, each capped at 500 chars.
func (r *Reader) Keyword(q string) []string {
	needle := strings.ToLower(q)
	if needle == "" {
		return nil
	}

	var excerpts []string
	var visit func(secs []models.ArxivHTMLSection)
	visit = func(secs []models.ArxivHTMLSection) {
		for _, sec := range secs {
			for _, p := range sec.Paragraphs {
				if len(excerpts) >= keywordMaxExcerpts {
					return
				}
				idx := strings.Index(strings.ToLower(p), needle)
				if idx < 0 {
					continue
				}
				excerpts = append(excerpts, excerptAround(p, idx))
			}
			visit(sec.Children)
			if len(excerpts) >= keywordMaxExcerpts {
				return
			}
		}
	}
	visit(r.fulltext.Sections)
	return excerpts
}

func renderSection(sec models.ArxivHTMLSection) string {
	var b strings.Builder
	b.WriteString(sec.Heading)
	for _, p := range sec.Paragraphs {
		b.WriteString("\n")
		b.WriteString(p)
	}
	for _, child := range sec.Children {
		b.WriteString("\n\n")
		b.WriteString(renderSection(child))
	}
	return b.String()
}

func excerptAround(text string, idx int) string {
	if len(text) <= keywordExcerptLen {
		return text
	}
	start := idx - keywordExcerptLen/2
	if start < 0 {
		start = 0
	}
	end := start + keywordExcerptLen
	if end > len(text) {
		end = len(text)
		start = end - keywordExcerptLen
	}
	return text[start:end]
}
