// Package deep runs the multi-agent deep-analysis workflow for one
// paper: a supervisor routes between research rounds and report writing,
// a researcher gathers evidence through tools, and a writer/reviewer
// pair iterates on the final report.
package deep

import (
	"time"

	"insight/internal/llm"
)

// Action is the routing decision recorded in the state.
type Action string

const (
	ActionResearch Action = "research"
	ActionWrite    Action = "write"
	ActionEnd      Action = "end"
)

// State is the single shared value threaded through the graph nodes.
type State struct {
	PaperID       string
	PaperTitle    string
	PaperAbstract string
	PaperHTMLURL  string

	Requirements string

	PaperFullContent    string
	PaperTablesContent  string
	PaperFiguresContent string

	PaperSectionsAvailable bool
	PaperTotalSections     int
	PaperReferencesCount   int
	FulltextParseStatus    string

	SupervisorMessages   []llm.Message
	CurrentResearchTopic string
	ResearchNotes        []string

	ResearchIterations int
	MaxIterations      int

	WriteIterations    int
	MaxWriteIterations int

	DraftReport    string
	ReviewFeedback string
	FinalReport    string

	NextAction Action

	AnalysisStartedAt time.Time
}

// NewState seeds the state with paper metadata and the iteration caps.
func NewState(paperID, title, abstract, requirements string, maxResearch, maxWrite int) *State {
	if maxResearch <= 0 {
		maxResearch = 5
	}
	if maxWrite <= 0 {
		maxWrite = 3
	}
	return &State{
		PaperID:            paperID,
		PaperTitle:         title,
		PaperAbstract:      abstract,
		Requirements:       requirements,
		MaxIterations:      maxResearch,
		MaxWriteIterations: maxWrite,
		NextAction:         ActionResearch,
		AnalysisStartedAt:  time.Now().UTC(),
	}
}
