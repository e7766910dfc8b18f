package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"insight/internal/models"
)

func samplePaper(id string, published time.Time) models.AnalyzedPaper {
	return models.AnalyzedPaper{
		Paper: models.Paper{
			ID:              id,
			Title:           "Paper " + id,
			Abstract:        "abstract",
			Authors:         []string{"A. Author"},
			Categories:      []string{"cs.AI"},
			PrimaryCategory: "cs.AI",
			AbsURL:          "https://arxiv.org/abs/" + id,
			PDFURL:          "https://arxiv.org/pdf/" + id + ".pdf",
			Published:       published,
		},
		AnalysisStatus: models.StatusPending,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := PapersPath(dir, "2025-01-20")

	now := time.Now().UTC().Truncate(time.Second)
	items := []models.AnalyzedPaper{
		samplePaper("2501.00001", now),
		samplePaper("2501.00002", now.Add(-time.Hour)),
	}

	if err := WritePapers(path, items); err != nil {
		t.Fatalf("WritePapers failed: %v", err)
	}

	got := ReadPapers(path)
	if len(got) != 2 {
		t.Fatalf("Expected 2 papers, got %d", len(got))
	}
	if got[0].ID != "2501.00001" || got[1].ID != "2501.00002" {
		t.Errorf("Unexpected order or ids: %s, %s", got[0].ID, got[1].ID)
	}
	if !got[0].Published.Equal(now) {
		t.Errorf("Published mismatch: %v != %v", got[0].Published, now)
	}
}

func TestReadLegacyLineDelimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2025-01-20.json")

	legacy := `{"id":"2501.00001","title":"T1","abstract":"a","authors":[],"categories":["cs.AI"],"primary_category":"cs.AI","abs_url":"u","pdf_url":"p","published":"2025-01-20T00:00:00Z","analysis_status":"pending"}
{"id":"2501.00002","title":"T2","abstract":"a","authors":[],"categories":["cs.AI"],"primary_category":"cs.AI","abs_url":"u","pdf_url":"p","published":"2025-01-19T00:00:00Z","analysis_status":"pending"}
`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	got := ReadPapers(path)
	if len(got) != 2 {
		t.Fatalf("Expected 2 papers from line-delimited file, got %d", len(got))
	}
	if got[1].Title != "T2" {
		t.Errorf("Expected title T2, got %s", got[1].Title)
	}
}

func TestReadUndecodableYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("[{broken"), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	if got := ReadPapers(path); len(got) != 0 {
		t.Errorf("Expected empty list from undecodable file, got %d items", len(got))
	}
}

func TestWriteNormalizesLegacyExtension(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "2025-01-20.jsonl")

	if err := WritePapers(legacy, []models.AnalyzedPaper{samplePaper("2501.00001", time.Now().UTC())}); err != nil {
		t.Fatalf("WritePapers failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "2025-01-20.json")); err != nil {
		t.Error("Writer should normalize .jsonl target to .json")
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Error("Writer should not produce a .jsonl file")
	}
}

func TestMergePapersKeepsSuccess(t *testing.T) {
	now := time.Now().UTC()
	analyzedAt := now.Add(-time.Hour)

	existing := samplePaper("2501.00001", now)
	existing.Title = "Old title"
	existing.AnalysisStatus = models.StatusSuccess
	existing.AnalyzedAt = &analyzedAt
	existing.LightAnalysis = &models.PaperLightAnalysis{Overview: "kept"}

	incoming := samplePaper("2501.00001", now)
	incoming.Title = "New title"

	merged := MergePapers([]models.AnalyzedPaper{existing}, []models.AnalyzedPaper{incoming})
	if len(merged) != 1 {
		t.Fatalf("Expected 1 merged paper, got %d", len(merged))
	}
	got := merged[0]
	if got.Title != "Old title" {
		t.Errorf("Success record must win entirely, got title %q", got.Title)
	}
	if got.LightAnalysis == nil || got.LightAnalysis.Overview != "kept" {
		t.Error("Analysis fields must be preserved on merge")
	}
}

func TestMergePapersReplacesNonSuccess(t *testing.T) {
	now := time.Now().UTC()

	existing := samplePaper("2501.00001", now)
	existing.Title = "Old title"
	existing.AnalysisStatus = models.StatusFailed
	existing.AnalysisError = "API rate limited: quota"

	incoming := samplePaper("2501.00001", now)
	incoming.Title = "New title"
	incoming.AnalysisStatus = ""

	merged := MergePapers([]models.AnalyzedPaper{existing}, []models.AnalyzedPaper{incoming})
	got := merged[0]
	if got.Title != "New title" {
		t.Errorf("Incoming record should replace a failed one, got title %q", got.Title)
	}
	if got.AnalysisStatus != models.StatusPending {
		t.Errorf("Replaced record should reset to pending, got %s", got.AnalysisStatus)
	}
	if got.AnalysisError != "" {
		t.Errorf("Stale analysis error should be cleared, got %q", got.AnalysisError)
	}
}

func TestMergePapersKeepsIncomingAnalysis(t *testing.T) {
	now := time.Now().UTC()
	analyzedAt := now.Add(-time.Minute)

	existing := samplePaper("2501.00001", now)

	incoming := samplePaper("2501.00001", now)
	incoming.AnalysisStatus = models.StatusSuccess
	incoming.AnalyzedAt = &analyzedAt
	incoming.LightAnalysis = &models.PaperLightAnalysis{Overview: "fresh"}

	merged := MergePapers([]models.AnalyzedPaper{existing}, []models.AnalyzedPaper{incoming})
	got := merged[0]
	if got.AnalysisStatus != models.StatusSuccess {
		t.Errorf("Fresh analysis must survive the merge, got status %s", got.AnalysisStatus)
	}
	if got.LightAnalysis == nil || got.LightAnalysis.Overview != "fresh" {
		t.Error("Fresh analysis payload must survive the merge")
	}
	if got.AnalyzedAt == nil || !got.AnalyzedAt.Equal(analyzedAt) {
		t.Error("analyzed_at must survive the merge")
	}
}

func TestMergeNewsKeepsIncomingAnalysis(t *testing.T) {
	now := time.Now().UTC()
	analyzedAt := now.Add(-time.Minute)

	existing := models.AnalyzedNews{
		NewsItem:       models.NewsItem{ID: "n1", Title: "Launch", URL: "https://acme.ai/x", Published: now},
		AnalysisStatus: models.StatusPending,
	}

	incoming := existing
	incoming.AnalysisStatus = models.StatusSuccess
	incoming.AnalyzedAt = &analyzedAt
	incoming.LightAnalysis = &models.NewsLightAnalysis{Summary: "fresh"}

	merged := MergeNews([]models.AnalyzedNews{existing}, []models.AnalyzedNews{incoming})
	got := merged[0]
	if got.AnalysisStatus != models.StatusSuccess || got.LightAnalysis == nil {
		t.Errorf("Fresh news analysis must survive the merge, got status %s", got.AnalysisStatus)
	}
}

func TestMergePapersInsertsNewAsPendingAndSorts(t *testing.T) {
	now := time.Now().UTC()

	older := samplePaper("2501.00001", now.Add(-2*time.Hour))
	newer := samplePaper("2501.00002", now)
	newer.AnalysisStatus = ""

	merged := MergePapers([]models.AnalyzedPaper{older}, []models.AnalyzedPaper{newer})
	if len(merged) != 2 {
		t.Fatalf("Expected 2 merged papers, got %d", len(merged))
	}
	if merged[0].ID != "2501.00002" {
		t.Errorf("Expected newest first, got %s", merged[0].ID)
	}
	if merged[0].AnalysisStatus != models.StatusPending {
		t.Errorf("New record should be pending, got %s", merged[0].AnalysisStatus)
	}
}

func TestFileListReverseSorted(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{PapersDir, NewsDir, ReportsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}
	for _, name := range []string{"2025-01-19.json", "2025-01-20.json", "2025-01-18.json"} {
		if err := os.WriteFile(filepath.Join(dir, PapersDir, name), []byte("[]"), 0o644); err != nil {
			t.Fatalf("seed write failed: %v", err)
		}
	}
	// A non-json file must be ignored
	if err := os.WriteFile(filepath.Join(dir, PapersDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	list := BuildFileList(dir)
	want := []string{"2025-01-20.json", "2025-01-19.json", "2025-01-18.json"}
	if len(list.Papers) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(list.Papers))
	}
	for i, name := range want {
		if list.Papers[i] != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, list.Papers[i])
		}
	}
	if list.LastUpdated == "" {
		t.Error("LastUpdated must be set")
	}

	if _, err := WriteFileList(dir); err != nil {
		t.Fatalf("WriteFileList failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileListName)); err != nil {
		t.Error("file-list.json should exist")
	}
}

func TestDeepProcessingStatus(t *testing.T) {
	dir := t.TempDir()

	if err := MarkDeepProcessing(dir, "2501.00001"); err != nil {
		t.Fatalf("MarkDeepProcessing failed: %v", err)
	}
	if err := MarkDeepProcessing(dir, "2501.00001"); err != nil {
		t.Fatalf("MarkDeepProcessing failed: %v", err)
	}

	status := readDeepStatus(dir)
	if len(status.ProcessingIDs) != 1 {
		t.Errorf("Expected 1 processing id, got %d", len(status.ProcessingIDs))
	}

	if err := ClearDeepProcessing(dir, "2501.00001"); err != nil {
		t.Fatalf("ClearDeepProcessing failed: %v", err)
	}
	status = readDeepStatus(dir)
	if len(status.ProcessingIDs) != 0 {
		t.Errorf("Expected empty processing ids, got %v", status.ProcessingIDs)
	}
}
