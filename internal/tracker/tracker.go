// Package tracker persists the sets of already-seen paper and news ids.
// Two independent files are used: fetched_ids.json records everything the
// ingestion phase has harvested, analyzed_ids.json records ids whose light
// analysis succeeded. Entries expire after a retention window.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"insight/internal/logger"
)

// DefaultRetentionDays is how long an id entry survives before cleanup.
const DefaultRetentionDays = 30

// Default file names under the data directory.
const (
	FetchedFile  = "fetched_ids.json"
	AnalyzedFile = "analyzed_ids.json"
)

type fileData struct {
	Papers map[string]string `json:"papers"`
	News   map[string]string `json:"news"`
}

// Tracker is a durable id -> first-seen-timestamp map split into a papers
// and a news namespace. Load is lazy and idempotent; every mutating call
// saves. All methods are safe for concurrent use.
type Tracker struct {
	mu            sync.Mutex
	filePath      string
	retentionDays int
	data          fileData
	loaded        bool
}

// New creates a tracker backed by filePath.
func New(filePath string, retentionDays int) *Tracker {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Tracker{
		filePath:      filePath,
		retentionDays: retentionDays,
		data:          fileData{Papers: map[string]string{}, News: map[string]string{}},
	}
}

// FilePath returns the backing file path.
func (t *Tracker) FilePath() string { return t.filePath }

// Load reads the backing file once. A missing or corrupt file yields an
// empty state with a warning rather than an error.
func (t *Tracker) Load() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()
}

func (t *Tracker) loadLocked() {
	if t.loaded {
		return
	}
	t.loaded = true

	raw, err := os.ReadFile(t.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read id file, starting empty", "path", t.filePath, "error", err.Error())
		}
		return
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Warn("Failed to parse id file, starting empty", "path", t.filePath, "error", err.Error())
		return
	}

	if data.Papers != nil {
		t.data.Papers = data.Papers
	}
	if data.News != nil {
		t.data.News = data.News
	}
	logger.Info("Id file loaded", "path", t.filePath,
		"papers", len(t.data.Papers), "news", len(t.data.News))
}

// Save writes the full state atomically (temp file + rename).
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(t.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create tracker dir: %w", err)
	}

	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracker state: %w", err)
	}

	tmp := t.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write tracker file: %w", err)
	}
	if err := os.Rename(tmp, t.filePath); err != nil {
		return fmt.Errorf("failed to replace tracker file: %w", err)
	}
	return nil
}

// Cleanup drops entries older than the retention window and rewrites the
// file only when something was removed. Returns the removed count.
func (t *Tracker) Cleanup() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()

	cutoff := time.Now().UTC().AddDate(0, 0, -t.retentionDays).Format(time.RFC3339Nano)

	removed := 0
	for _, category := range []map[string]string{t.data.Papers, t.data.News} {
		for id, ts := range category {
			if ts < cutoff {
				delete(category, id)
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("Cleaned expired id entries", "removed", removed, "path", t.filePath)
		if err := t.saveLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// PaperIDs returns the set of tracked paper ids.
func (t *Tracker) PaperIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()
	return copyKeys(t.data.Papers)
}

// NewsIDs returns the set of tracked news ids.
func (t *Tracker) NewsIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()
	return copyKeys(t.data.News)
}

// MarkPapers records now as first-seen for ids not already present.
func (t *Tracker) MarkPapers(ids []string) error {
	return t.mark(ids, func() map[string]string { return t.data.Papers })
}

// MarkNews records now as first-seen for ids not already present.
func (t *Tracker) MarkNews(ids []string) error {
	return t.mark(ids, func() map[string]string { return t.data.News })
}

func (t *Tracker) mark(ids []string, category func() map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, ok := category()[id]; !ok {
			category()[id] = now
		}
	}
	return t.saveLocked()
}

func copyKeys(m map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

var (
	singletonMu sync.Mutex
	singletons  = map[string]*Tracker{}
)

// Fetched returns the process-wide tracker for harvested ids, keyed by its
// file path so tests with distinct directories get distinct instances.
func Fetched(dataDir string) *Tracker {
	return singleton(filepath.Join(dataDir, FetchedFile))
}

// Analyzed returns the process-wide tracker for successfully analyzed ids.
func Analyzed(dataDir string) *Tracker {
	return singleton(filepath.Join(dataDir, AnalyzedFile))
}

func singleton(path string) *Tracker {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if t, ok := singletons[path]; ok {
		return t
	}
	t := New(path, DefaultRetentionDays)
	singletons[path] = t
	return t
}

// Reset clears the singleton registry (useful for testing).
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletons = map[string]*Tracker{}
}
