package arxiv

import (
	"errors"
	"strings"
	"testing"
)

const sampleHTML = `<!DOCTYPE html>
<html><head><title>2501.12345</title><script>var x=1;</script></head>
<body>
<main>
<h1 class="ltx_title">Attention Revisited</h1>
<div class="ltx_authors"><span class="ltx_personname">Ada Lovelace</span></div>
<div class="ltx_abstract"><p class="ltx_p">We revisit attention mechanisms.</p></div>
<p>Front matter paragraph one.</p>
<p>Front matter paragraph two.</p>
<h2>1 Introduction</h2>
<p>Attention is widely used.</p>
<p>We study its limits.</p>
<h2>2 Method</h2>
<p>We propose a sparse kernel.</p>
<h3>2.1 Sparse Kernel</h3>
<p>The kernel uses hashing for sparse attention routing.</p>
<h3>2.2 Training</h3>
<p>Training uses curriculum schedules.</p>
<h2>3 Experiments</h2>
<p>We evaluate on twelve benchmarks.</p>
<h2>4 Conclusion</h2>
<p>Sparse attention scales further.</p>
</main>
</body></html>`

func TestParseHTMLFulltext(t *testing.T) {
	ft, err := ParseHTMLFulltext("2501.12345", "https://arxiv.org/html/2501.12345v1", sampleHTML)
	if err != nil {
		t.Fatalf("ParseHTMLFulltext failed: %v", err)
	}

	if ft.Title != "Attention Revisited" {
		t.Errorf("Unexpected title %q", ft.Title)
	}
	if len(ft.Authors) != 1 || ft.Authors[0] != "Ada Lovelace" {
		t.Errorf("Unexpected authors %v", ft.Authors)
	}
	if ft.Abstract != "We revisit attention mechanisms." {
		t.Errorf("Unexpected abstract %q", ft.Abstract)
	}
	if len(ft.FrontMatterParagraphs) != 3 {
		// abstract paragraph also precedes the first heading
		t.Errorf("Expected 3 front-matter paragraphs, got %d: %v",
			len(ft.FrontMatterParagraphs), ft.FrontMatterParagraphs)
	}

	if len(ft.Sections) != 4 {
		t.Fatalf("Expected 4 top-level sections, got %d", len(ft.Sections))
	}

	method := ft.Sections[1]
	if method.Number != "2" || method.Title != "Method" {
		t.Errorf("Heading split failed: number=%q title=%q", method.Number, method.Title)
	}
	if len(method.Children) != 2 {
		t.Fatalf("Expected 2 subsections under Method, got %d", len(method.Children))
	}
	if method.Children[0].Number != "2.1" {
		t.Errorf("Expected subsection number 2.1, got %q", method.Children[0].Number)
	}
	if method.Children[0].Level != 3 {
		t.Errorf("Expected level 3, got %d", method.Children[0].Level)
	}

	if ft.SectionCount() != 6 {
		t.Errorf("Expected 6 sections total, got %d", ft.SectionCount())
	}
	if ft.Stats.HTMLChars != len(sampleHTML) {
		t.Errorf("html_chars mismatch: %d != %d", ft.Stats.HTMLChars, len(sampleHTML))
	}
	if ft.Stats.Blocks == 0 {
		t.Error("blocks should be counted")
	}
}

func TestParseHTMLFulltextNoHeadingsFails(t *testing.T) {
	_, err := ParseHTMLFulltext("2501.12345", "u", "<html><body><p>only text</p></body></html>")
	if !errors.Is(err, ErrFulltextUnavailable) {
		t.Fatalf("Expected ErrFulltextUnavailable, got %v", err)
	}
}

func TestSummaryContext(t *testing.T) {
	ft, err := ParseHTMLFulltext("2501.12345", "u", sampleHTML)
	if err != nil {
		t.Fatalf("ParseHTMLFulltext failed: %v", err)
	}

	ctx := SummaryContext(ft)
	if !strings.Contains(ctx, "Front matter paragraph one.") {
		t.Error("Context should include front matter")
	}
	if !strings.Contains(ctx, "## 2 Method") {
		t.Error("Context should include section headings")
	}
	if !strings.Contains(ctx, "curriculum schedules") {
		t.Error("Context should include subsection paragraphs")
	}
	if len(ctx) > summaryContextMaxChars {
		t.Errorf("Context exceeds cap: %d", len(ctx))
	}
}

func TestReaderSection(t *testing.T) {
	ft, _ := ParseHTMLFulltext("2501.12345", "u", sampleHTML)
	reader := NewReader(ft)

	text, ok := reader.Section("method")
	if !ok {
		t.Fatal("Expected method section")
	}
	if !strings.Contains(text, "sparse kernel") && !strings.Contains(text, "Sparse Kernel") {
		t.Errorf("Method section should include subsections, got %q", text)
	}

	text, ok = reader.Section("conclusion")
	if !ok || !strings.Contains(text, "scales further") {
		t.Errorf("Conclusion lookup failed: ok=%v text=%q", ok, text)
	}

	if _, ok := reader.Section("appendix"); ok {
		t.Error("Unknown section should report not found")
	}

	// Abstract comes from the parsed abstract block
	text, ok = reader.Section("abstract")
	if !ok || text != "We revisit attention mechanisms." {
		t.Errorf("Abstract lookup failed: ok=%v text=%q", ok, text)
	}
}

func TestReaderKeywordAndOverview(t *testing.T) {
	ft, _ := ParseHTMLFulltext("2501.12345", "u", sampleHTML)
	reader := NewReader(ft)

	excerpts := reader.Keyword("hashing")
	if len(excerpts) != 1 {
		t.Fatalf("Expected 1 excerpt, got %d", len(excerpts))
	}
	if !strings.Contains(excerpts[0], "hashing") {
		t.Errorf("Excerpt should contain the keyword: %q", excerpts[0])
	}

	if got := reader.Keyword("nonexistent-term"); len(got) != 0 {
		t.Errorf("Expected no excerpts, got %v", got)
	}

	overview := reader.Overview()
	if !strings.Contains(overview, "Attention Revisited") {
		t.Error("Overview should include the title")
	}
	if !strings.Contains(overview, "2.1 Sparse Kernel") {
		t.Error("Overview should list nested headings")
	}
}
