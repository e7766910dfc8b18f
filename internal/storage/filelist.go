package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"insight/internal/models"
)

// FileListName is the catalog file consumed by the static site.
const FileListName = "file-list.json"

// BuildFileList scans the data directory and returns the catalog. File
// names sort in reverse so YYYY-MM-DD.json entries come newest-first.
func BuildFileList(dataDir string) models.FileList {
	return models.FileList{
		Papers:      sortedJSONNames(filepath.Join(dataDir, PapersDir)),
		News:        sortedJSONNames(filepath.Join(dataDir, NewsDir)),
		Reports:     sortedJSONNames(filepath.Join(dataDir, ReportsDir)),
		LastUpdated: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// WriteFileList generates and writes file-list.json, returning its path.
func WriteFileList(dataDir string) (string, error) {
	path := filepath.Join(dataDir, FileListName)
	if err := writeJSON(path, BuildFileList(dataDir)); err != nil {
		return "", err
	}
	return path, nil
}

func sortedJSONNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}
