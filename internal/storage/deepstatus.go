package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"

	"insight/internal/logger"
)

// DeepStatusFile tracks deep-analysis runs that are currently in flight.
const DeepStatusFile = "analysis/deep_analysis_status.json"

type deepStatus struct {
	ProcessingIDs []string `json:"processing_ids"`
}

// DeepAnalysisDir returns the directory holding deep-analysis reports.
func DeepAnalysisDir(dataDir string) string {
	return filepath.Join(dataDir, "analysis", "deep")
}

// DeepReportPath returns the markdown path for one paper's deep analysis.
func DeepReportPath(dataDir, paperID string) string {
	return filepath.Join(DeepAnalysisDir(dataDir), paperID+".md")
}

// MarkDeepProcessing records a paper id as being analyzed.
func MarkDeepProcessing(dataDir, paperID string) error {
	status := readDeepStatus(dataDir)
	if !slices.Contains(status.ProcessingIDs, paperID) {
		status.ProcessingIDs = append(status.ProcessingIDs, paperID)
	}
	return writeJSON(filepath.Join(dataDir, DeepStatusFile), status)
}

// ClearDeepProcessing removes a paper id from the in-flight set.
func ClearDeepProcessing(dataDir, paperID string) error {
	status := readDeepStatus(dataDir)
	status.ProcessingIDs = slices.DeleteFunc(status.ProcessingIDs, func(id string) bool {
		return id == paperID
	})
	return writeJSON(filepath.Join(dataDir, DeepStatusFile), status)
}

func readDeepStatus(dataDir string) deepStatus {
	status := deepStatus{ProcessingIDs: []string{}}
	raw, err := os.ReadFile(filepath.Join(dataDir, DeepStatusFile))
	if err != nil {
		return status
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		logger.Warn("Failed to decode deep analysis status, resetting", "error", err.Error())
		return deepStatus{ProcessingIDs: []string{}}
	}
	if status.ProcessingIDs == nil {
		status.ProcessingIDs = []string{}
	}
	return status
}
