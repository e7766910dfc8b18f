package models

import "time"

// ArxivHTMLSource records where a fulltext document came from.
type ArxivHTMLSource struct {
	Provider  string    `json:"provider"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ArxivHTMLSection is one node of the parsed section tree. Level follows the
// HTML heading level (h2 -> 2, h3 -> 3, ...). Heading keeps the raw text
// including any leading number; Number/Title are the split parts.
type ArxivHTMLSection struct {
	Level      int                `json:"level"`
	Heading    string             `json:"heading"`
	Number     string             `json:"number,omitempty"`
	Title      string             `json:"title"`
	Paragraphs []string           `json:"paragraphs"`
	Children   []ArxivHTMLSection `json:"children"`
}

// ArxivHTMLStats counts parsed blocks for debugging.
type ArxivHTMLStats struct {
	HTMLChars int `json:"html_chars"`
	Blocks    int `json:"blocks"`
}

// ArxivHTMLFulltext is the structured form of the official arXiv HTML page.
type ArxivHTMLFulltext struct {
	PaperID               string             `json:"paper_id"`
	Source                ArxivHTMLSource    `json:"source"`
	Title                 string             `json:"title"`
	Authors               []string           `json:"authors"`
	Keywords              []string           `json:"keywords"`
	Abstract              string             `json:"abstract"`
	FrontMatterParagraphs []string           `json:"front_matter_paragraphs"`
	Sections              []ArxivHTMLSection `json:"sections"`
	Stats                 ArxivHTMLStats     `json:"stats"`
}

// SectionCount returns the number of sections in the tree, children included.
func (f ArxivHTMLFulltext) SectionCount() int {
	var count func(secs []ArxivHTMLSection) int
	count = func(secs []ArxivHTMLSection) int {
		n := len(secs)
		for _, s := range secs {
			n += count(s.Children)
		}
		return n
	}
	return count(f.Sections)
}
