// Package storage owns the on-disk JSON layout under the data directory:
// per-date arrays for papers and news, per-date daily reports, the
// file-list catalog and the deep-analysis status file.
package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"insight/internal/logger"
	"insight/internal/models"
)

// Data subdirectories.
const (
	PapersDir  = "papers"
	NewsDir    = "news"
	ReportsDir = "reports"
)

// DateFormat is the file-name date layout.
const DateFormat = "2006-01-02"

// PapersPath returns the per-date papers file path.
func PapersPath(dataDir, date string) string {
	return filepath.Join(dataDir, PapersDir, date+".json")
}

// NewsPath returns the per-date news file path.
func NewsPath(dataDir, date string) string {
	return filepath.Join(dataDir, NewsDir, date+".json")
}

// ReportPath returns the per-date report file path.
func ReportPath(dataDir, date string) string {
	return filepath.Join(dataDir, ReportsDir, date+".json")
}

// ReadPapers loads a per-date papers file. Missing or undecodable files
// yield an empty list with a warning.
func ReadPapers(path string) []models.AnalyzedPaper {
	return readItems[models.AnalyzedPaper](path)
}

// WritePapers writes a per-date papers file atomically.
func WritePapers(path string, items []models.AnalyzedPaper) error {
	return writeItems(path, items)
}

// ReadNews loads a per-date news file. Missing or undecodable files yield
// an empty list with a warning.
func ReadNews(path string) []models.AnalyzedNews {
	return readItems[models.AnalyzedNews](path)
}

// WriteNews writes a per-date news file atomically.
func WriteNews(path string, items []models.AnalyzedNews) error {
	return writeItems(path, items)
}

// ReadReport loads a daily report. Returns nil when missing or undecodable.
func ReadReport(path string) *models.DailyReport {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read report file", "path", path, "error", err.Error())
		}
		return nil
	}
	var report models.DailyReport
	if err := json.Unmarshal(raw, &report); err != nil {
		logger.Warn("Failed to decode report file", "path", path, "error", err.Error())
		return nil
	}
	return &report
}

// WriteReport writes a daily report atomically.
func WriteReport(path string, report models.DailyReport) error {
	return writeJSON(path, report)
}

// readItems accepts both a JSON array and the legacy line-delimited form.
func readItems[T any](path string) []T {
	raw, err := os.ReadFile(path)
	if err == nil {
		return decodeItems[T](path, raw)
	}
	if os.IsNotExist(err) {
		// Legacy files used a .jsonl extension
		if legacy := legacyPath(path); legacy != path {
			if raw, lerr := os.ReadFile(legacy); lerr == nil {
				return decodeItems[T](legacy, raw)
			}
		}
		return nil
	}
	logger.Warn("Failed to read data file", "path", path, "error", err.Error())
	return nil
}

func decodeItems[T any](path string, raw []byte) []T {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			logger.Warn("Failed to decode data file, treating as empty", "path", path, "error", err.Error())
			return nil
		}
		return items
	}

	// Line-delimited: one JSON object per line, blank lines skipped.
	var items []T
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			logger.Warn("Skipping undecodable line", "path", path, "error", err.Error())
			continue
		}
		items = append(items, item)
	}
	return items
}

// writeItems writes a JSON array with indentation. A legacy .jsonl target
// path is normalized to .json.
func writeItems[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return writeJSON(legacyToArrayPath(path), items)
}

// writeJSON writes v atomically (temp file + rename) with indentation and
// without HTML escaping so titles survive round-trips unmangled.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func legacyPath(path string) string {
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + ".jsonl"
	}
	return path
}

func legacyToArrayPath(path string) string {
	if strings.HasSuffix(path, ".jsonl") {
		return strings.TrimSuffix(path, ".jsonl") + ".json"
	}
	return path
}

// MergePapers applies the merge-on-write policy: an existing record with a
// successful analysis wins entirely; otherwise the incoming record replaces
// it, so a fresh analysis overwrites a pending or failed one. New ids are
// inserted as pending. The result is sorted by published desc.
func MergePapers(existing, incoming []models.AnalyzedPaper) []models.AnalyzedPaper {
	index := make(map[string]int, len(existing))
	merged := make([]models.AnalyzedPaper, len(existing))
	copy(merged, existing)
	for i, item := range merged {
		index[item.ID] = i
	}

	for _, in := range incoming {
		pos, ok := index[in.ID]
		if !ok {
			if in.AnalysisStatus == "" {
				in.AnalysisStatus = models.StatusPending
			}
			index[in.ID] = len(merged)
			merged = append(merged, in)
			continue
		}
		if merged[pos].IsAnalyzed() {
			continue
		}
		if in.AnalysisStatus == "" {
			in.AnalysisStatus = models.StatusPending
		}
		merged[pos] = in
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})
	return merged
}

// MergeNews is the news counterpart of MergePapers.
func MergeNews(existing, incoming []models.AnalyzedNews) []models.AnalyzedNews {
	index := make(map[string]int, len(existing))
	merged := make([]models.AnalyzedNews, len(existing))
	copy(merged, existing)
	for i, item := range merged {
		index[item.ID] = i
	}

	for _, in := range incoming {
		pos, ok := index[in.ID]
		if !ok {
			if in.AnalysisStatus == "" {
				in.AnalysisStatus = models.StatusPending
			}
			index[in.ID] = len(merged)
			merged = append(merged, in)
			continue
		}
		if merged[pos].IsAnalyzed() {
			continue
		}
		if in.AnalysisStatus == "" {
			in.AnalysisStatus = models.StatusPending
		}
		merged[pos] = in
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})
	return merged
}
