package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMarkAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetched_ids.json")

	tr := New(path, 30)
	if err := tr.MarkPapers([]string{"2501.00001", "2501.00002"}); err != nil {
		t.Fatalf("MarkPapers failed: %v", err)
	}
	if err := tr.MarkNews([]string{"abc123"}); err != nil {
		t.Fatalf("MarkNews failed: %v", err)
	}

	// Fresh instance must see the persisted state
	tr2 := New(path, 30)
	papers := tr2.PaperIDs()
	if len(papers) != 2 {
		t.Errorf("Expected 2 paper ids, got %d", len(papers))
	}
	if _, ok := papers["2501.00001"]; !ok {
		t.Error("Expected 2501.00001 to be tracked")
	}
	news := tr2.NewsIDs()
	if len(news) != 1 {
		t.Errorf("Expected 1 news id, got %d", len(news))
	}
}

func TestMarkKeepsFirstSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetched_ids.json")

	tr := New(path, 30)
	if err := tr.MarkPapers([]string{"2501.00001"}); err != nil {
		t.Fatalf("MarkPapers failed: %v", err)
	}

	first := readTimestamp(t, path, "2501.00001")
	time.Sleep(5 * time.Millisecond)

	if err := tr.MarkPapers([]string{"2501.00001"}); err != nil {
		t.Fatalf("MarkPapers failed: %v", err)
	}
	second := readTimestamp(t, path, "2501.00001")

	if first != second {
		t.Errorf("Re-marking must not update first-seen: %s != %s", first, second)
	}
}

func TestCleanupDropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetched_ids.json")

	old := time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339Nano)
	fresh := time.Now().UTC().Format(time.RFC3339Nano)
	seed := map[string]map[string]string{
		"papers": {"old-paper": old, "new-paper": fresh},
		"news":   {"old-news": old},
	}
	raw, _ := json.Marshal(seed)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	tr := New(path, 30)
	removed, err := tr.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	papers := tr.PaperIDs()
	if _, ok := papers["old-paper"]; ok {
		t.Error("Expired paper id should be gone")
	}
	if _, ok := papers["new-paper"]; !ok {
		t.Error("Fresh paper id should survive cleanup")
	}
}

func TestCleanupNoRewriteWhenNothingExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetched_ids.json")

	tr := New(path, 30)
	if err := tr.MarkPapers([]string{"2501.00001"}); err != nil {
		t.Fatalf("MarkPapers failed: %v", err)
	}

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	removed, err := tr.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected 0 removed, got %d", removed)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("Cleanup with nothing expired must not rewrite the file")
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetched_ids.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	tr := New(path, 30)
	if got := len(tr.PaperIDs()); got != 0 {
		t.Errorf("Expected empty state from corrupt file, got %d ids", got)
	}
}

func TestSingletonsAreDistinctPerFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	dir := t.TempDir()
	fetched := Fetched(dir)
	analyzed := Analyzed(dir)

	if fetched == analyzed {
		t.Fatal("Fetched and Analyzed must be distinct trackers")
	}
	if fetched != Fetched(dir) {
		t.Error("Fetched must return the same instance per data dir")
	}

	if err := fetched.MarkPapers([]string{"2501.00001"}); err != nil {
		t.Fatalf("MarkPapers failed: %v", err)
	}
	if len(analyzed.PaperIDs()) != 0 {
		t.Error("Marking fetched ids must not leak into the analyzed tracker")
	}
}

func readTimestamp(t *testing.T, path, id string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var data map[string]map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return data["papers"][id]
}
