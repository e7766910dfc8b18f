package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"insight/internal/models"
)

const htmlBase = "https://arxiv.org/html/"

// minHTMLChars guards against stub pages ("HTML is not available...").
const minHTMLChars = 1000

// maxFrontMatterParagraphs caps the paragraphs collected before the first
// section heading.
const maxFrontMatterParagraphs = 30

// ErrFulltextUnavailable marks hard failures of the fulltext step; the
// deep-analysis flow treats it as fatal.
var ErrFulltextUnavailable = fmt.Errorf("arxiv html fulltext unavailable")

var headingNumber = regexp.MustCompile(`^(\d+(?:\.\d+)*)(?:\.)?\s+(.*)$`)

// FetchHTMLFulltext resolves the latest version of the paper, downloads the
// official HTML rendering and parses it into a section tree. Any of: a
// non-200 response, a tiny body, or a page without h2-h6 headings is a
// hard failure.
func (c *Client) FetchHTMLFulltext(ctx context.Context, paperID string) (*models.ArxivHTMLFulltext, error) {
	version, err := c.resolveVersion(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("%w: version resolve failed: %v", ErrFulltextUnavailable, err)
	}

	pageURL := htmlBase + paperID + version
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFulltextUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", ErrFulltextUnavailable, resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFulltextUnavailable, err)
	}
	if len(body) < minHTMLChars {
		return nil, fmt.Errorf("%w: body too small (%d bytes)", ErrFulltextUnavailable, len(body))
	}

	fulltext, err := ParseHTMLFulltext(paperID, pageURL, string(body))
	if err != nil {
		return nil, err
	}
	return fulltext, nil
}

// resolveVersion issues an id_list query and extracts the version suffix
// from the returned entry id.
func (c *Client) resolveVersion(ctx context.Context, paperID string) (string, error) {
	params := url.Values{}
	params.Set("id_list", paperID)
	params.Set("start", "0")
	params.Set("max_results", "1")

	feed, err := c.fetchPage(ctx, params)
	if err != nil {
		return "", err
	}
	if len(feed.Entries) == 0 {
		return "", fmt.Errorf("paper %s not found", paperID)
	}
	version := EntryVersion(feed.Entries[0].ID)
	if version == "" {
		return "", fmt.Errorf("no version in entry id %q", feed.Entries[0].ID)
	}
	return version, nil
}

// ParseHTMLFulltext parses an official arXiv HTML page into the structured
// fulltext model. Exported for tests and offline reprocessing.
func ParseHTMLFulltext(paperID, pageURL, html string) (*models.ArxivHTMLFulltext, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrFulltextUnavailable, err)
	}

	doc.Find("script, style, noscript").Remove()

	root := contentRoot(doc)

	headings := root.Find("h2, h3, h4, h5, h6")
	if headings.Length() == 0 {
		return nil, fmt.Errorf("%w: no section headings", ErrFulltextUnavailable)
	}

	title := normalizeSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = normalizeSpace(doc.Find("title").First().Text())
	}

	var authors []string
	doc.Find(".ltx_personname").Each(func(_ int, s *goquery.Selection) {
		if name := normalizeSpace(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	abstract := normalizeSpace(doc.Find(".ltx_abstract p, .ltx_abstract .ltx_p").Text())

	frontMatter, sections, blocks := walkBlocks(root)

	return &models.ArxivHTMLFulltext{
		PaperID: paperID,
		Source: models.ArxivHTMLSource{
			Provider:  "arxiv",
			URL:       pageURL,
			FetchedAt: time.Now().UTC(),
		},
		Title:                 title,
		Authors:               authors,
		Keywords:              []string{},
		Abstract:              abstract,
		FrontMatterParagraphs: frontMatter,
		Sections:              sections,
		Stats: models.ArxivHTMLStats{
			HTMLChars: len(html),
			Blocks:    blocks,
		},
	}, nil
}

func contentRoot(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"main", "article", "#content"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Find("body").First()
}

// walkBlocks traverses headings and paragraphs in document order, building
// the section tree with a running stack: each heading closes every open
// section of equal or lower level.
func walkBlocks(root *goquery.Selection) ([]string, []models.ArxivHTMLSection, int) {
	frontMatter := []string{}
	var topSections []models.ArxivHTMLSection
	var stack []*models.ArxivHTMLSection
	blocks := 0

	root.Find("h2, h3, h4, h5, h6, p").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		text := normalizeSpace(s.Text())
		if text == "" {
			return
		}
		blocks++

		if tag == "p" {
			if len(stack) == 0 {
				if len(frontMatter) < maxFrontMatterParagraphs {
					frontMatter = append(frontMatter, text)
				}
				return
			}
			top := stack[len(stack)-1]
			top.Paragraphs = append(top.Paragraphs, text)
			return
		}

		level := int(tag[1] - '0')
		number, title := splitHeading(text)
		section := &models.ArxivHTMLSection{
			Level:      level,
			Heading:    text,
			Number:     number,
			Title:      title,
			Paragraphs: []string{},
			Children:   []models.ArxivHTMLSection{},
		}

		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			attachSection(&topSections, stack, closed)
		}
		stack = append(stack, section)
	})

	for len(stack) > 0 {
		closed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		attachSection(&topSections, stack, closed)
	}

	return frontMatter, topSections, blocks
}

func attachSection(top *[]models.ArxivHTMLSection, stack []*models.ArxivHTMLSection, closed *models.ArxivHTMLSection) {
	if len(stack) == 0 {
		*top = append(*top, *closed)
		return
	}
	parent := stack[len(stack)-1]
	parent.Children = append(parent.Children, *closed)
}

// splitHeading separates a leading dotted number ("3.2") from the title.
func splitHeading(heading string) (string, string) {
	if m := headingNumber.FindStringSubmatch(heading); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", heading
}

// summaryContextMaxChars caps the plain-text context fed to the writer.
const summaryContextMaxChars = 20000

// summaryContextMaxParagraphs caps paragraphs taken per section.
const summaryContextMaxParagraphs = 5

// SummaryContext flattens the fulltext into a capped plain-text context:
// front matter first, then up to five paragraphs per section depth-first.
func SummaryContext(f *models.ArxivHTMLFulltext) string {
	var b strings.Builder

	write := func(s string) bool {
		if b.Len()+len(s)+1 > summaryContextMaxChars {
			return false
		}
		b.WriteString(s)
		b.WriteString("\n")
		return true
	}

	for _, p := range f.FrontMatterParagraphs {
		if !write(p) {
			return b.String()
		}
	}

	var visit func(secs []models.ArxivHTMLSection) bool
	visit = func(secs []models.ArxivHTMLSection) bool {
		for _, sec := range secs {
			if !write("## " + sec.Heading) {
				return false
			}
			limit := len(sec.Paragraphs)
			if limit > summaryContextMaxParagraphs {
				limit = summaryContextMaxParagraphs
			}
			for _, p := range sec.Paragraphs[:limit] {
				if !write(p) {
					return false
				}
			}
			if !visit(sec.Children) {
				return false
			}
		}
		return true
	}
	visit(f.Sections)

	return b.String()
}
