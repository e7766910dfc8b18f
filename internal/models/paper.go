package models

import "time"

// Analysis status values shared by papers and news items.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Paper is an arXiv paper as returned by the export API. The ID is the
// canonical arXiv identifier without the version suffix (e.g. "2501.12345").
type Paper struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract"`
	Authors         []string   `json:"authors"`
	Categories      []string   `json:"categories"`
	PrimaryCategory string     `json:"primary_category"`
	AbsURL          string     `json:"abs_url"`
	PDFURL          string     `json:"pdf_url"`
	Published       time.Time  `json:"published"`
	Updated         *time.Time `json:"updated,omitempty"`
	Comment         string     `json:"comment,omitempty"`
}

// LatestTime returns max(published, updated); used for time-window filtering.
func (p Paper) LatestTime() time.Time {
	if p.Updated != nil && p.Updated.After(p.Published) {
		return *p.Updated
	}
	return p.Published
}

// PaperLightAnalysis is the structured single-shot summary of one paper.
type PaperLightAnalysis struct {
	Overview   string   `json:"overview"`
	Motivation string   `json:"motivation"`
	Method     string   `json:"method"`
	Result     string   `json:"result"`
	Conclusion string   `json:"conclusion"`
	Tags       []string `json:"tags"`
}

// AnalyzedPaper is a Paper plus its light-analysis envelope.
type AnalyzedPaper struct {
	Paper

	LightAnalysis  *PaperLightAnalysis `json:"light_analysis,omitempty"`
	AnalyzedAt     *time.Time          `json:"analyzed_at,omitempty"`
	AnalysisStatus string              `json:"analysis_status"`
	AnalysisError  string              `json:"analysis_error,omitempty"`
}

// IsAnalyzed reports whether the paper carries a successful analysis.
func (p AnalyzedPaper) IsAnalyzed() bool {
	return p.AnalysisStatus == StatusSuccess && p.LightAnalysis != nil
}
