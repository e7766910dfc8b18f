package deep

import (
	"context"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"insight/internal/llm"
	"insight/internal/search"
)

// scriptedService replays queued responses: ChatTools pops from
// toolResponses, Chat pops from chatResponses.
type scriptedService struct {
	toolResponses []*llm.Response
	chatResponses []string

	toolCalls int
	chatCalls int
}

func (s *scriptedService) ChatTools(_ context.Context, _ []llm.Message, _ []llm.Tool, _ ...llm.CallOption) (*llm.Response, error) {
	if s.toolCalls >= len(s.toolResponses) {
		return &llm.Response{}, nil
	}
	resp := s.toolResponses[s.toolCalls]
	s.toolCalls++
	return resp, nil
}

func (s *scriptedService) Chat(_ context.Context, _ []llm.Message, _ ...llm.CallOption) (string, error) {
	if s.chatCalls >= len(s.chatResponses) {
		return "", nil
	}
	text := s.chatResponses[s.chatCalls]
	s.chatCalls++
	return text, nil
}

func (s *scriptedService) ChatStructured(context.Context, []llm.Message, *genai.Schema, any, ...llm.CallOption) error {
	return nil
}

// fakeSearch returns one canned hit per query.
type fakeSearch struct {
	name string
	fail bool

	mu     sync.Mutex
	called int
}

func (f *fakeSearch) Name() string { return f.name }

func (f *fakeSearch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]search.Result, error) {
	f.mu.Lock()
	f.called++
	f.mu.Unlock()
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	return []search.Result{{Title: "Hit for " + query, URL: "https://h.example/" + query, Snippet: "snippet"}}, nil
}

func toolCall(name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: "call-" + name, Name: name, Args: args}
}

func testState(maxResearch, maxWrite int) *State {
	return NewState("2501.00001", "Sparse Attention Revisited", "We study sparse attention.", "", maxResearch, maxWrite)
}

func TestGraphHappyPath(t *testing.T) {
	svc := &scriptedService{
		toolResponses: []*llm.Response{
			// supervisor round 1: dispatch research
			{ToolCalls: []llm.ToolCall{toolCall("conduct_research", map[string]any{"topic": "prior work on sparse attention"})}},
			// researcher: one web_search round
			{ToolCalls: []llm.ToolCall{toolCall("web_search", map[string]any{"queries": []any{"sparse attention prior work"}})}},
			// researcher: synthesis
			{Text: "Prior work uses fixed patterns; this paper learns them."},
			// supervisor round 2: done
			{ToolCalls: []llm.ToolCall{toolCall("research_complete", map[string]any{"summary": "enough evidence"})}},
			// reviewer: approve
			{ToolCalls: []llm.ToolCall{toolCall("approve_report", nil)}},
		},
		chatResponses: []string{"# Report\n\nSolid paper."},
	}
	primary := &fakeSearch{name: "Primary"}

	g := NewGraph(svc, primary, nil, nil, nil)
	state := testState(5, 3)

	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if state.FinalReport != "# Report\n\nSolid paper." {
		t.Errorf("Unexpected final report %q", state.FinalReport)
	}
	if state.ResearchIterations != 1 || state.WriteIterations != 1 {
		t.Errorf("Iteration counts wrong: research=%d write=%d", state.ResearchIterations, state.WriteIterations)
	}
	if len(state.ResearchNotes) != 1 || !strings.Contains(state.ResearchNotes[0], "fixed patterns") {
		t.Errorf("Research note missing: %v", state.ResearchNotes)
	}
	if state.CurrentResearchTopic != "" {
		t.Error("Topic should be cleared after the research round")
	}
	if primary.calls() != 1 {
		t.Errorf("web_search should hit the primary backend once, got %d", primary.calls())
	}
	if state.NextAction != ActionEnd {
		t.Errorf("Unexpected next action %q", state.NextAction)
	}
}

func TestGraphForcedEndAtWriteBudget(t *testing.T) {
	reject := &llm.Response{ToolCalls: []llm.ToolCall{
		toolCall("request_revision", map[string]any{"feedback": "needs more detail"}),
	}}
	svc := &scriptedService{
		toolResponses: []*llm.Response{
			// supervisor goes straight to the writer
			{ToolCalls: []llm.ToolCall{toolCall("research_complete", map[string]any{"summary": "none needed"})}},
			reject, reject, reject,
		},
		chatResponses: []string{"draft 1", "draft 2"},
	}

	g := NewGraph(svc, &fakeSearch{name: "Primary"}, nil, nil, nil)
	state := testState(5, 2)

	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.WriteIterations != 2 {
		t.Errorf("Expected 2 writes before the forced end, got %d", state.WriteIterations)
	}
	if state.FinalReport != "draft 2" {
		t.Errorf("Forced end should accept the last draft, got %q", state.FinalReport)
	}
}

func TestGraphDefaultsToResearcherWithoutToolCall(t *testing.T) {
	svc := &scriptedService{
		toolResponses: []*llm.Response{
			// supervisor answers in prose; router must still research
			{Text: "Let me think about this paper."},
			// researcher synthesizes immediately
			{Text: "Direct note."},
			// supervisor now finishes
			{ToolCalls: []llm.ToolCall{toolCall("research_complete", map[string]any{"summary": "done"})}},
			// reviewer silent: default approve
			{Text: "looks fine"},
		},
		chatResponses: []string{"final draft"},
	}

	g := NewGraph(svc, &fakeSearch{name: "Primary"}, nil, nil, nil)
	state := testState(5, 3)

	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.ResearchIterations != 1 {
		t.Errorf("Default route should research once, got %d", state.ResearchIterations)
	}
	if !strings.Contains(state.ResearchNotes[0], "Direct note.") {
		t.Errorf("Note missing: %v", state.ResearchNotes)
	}
	if state.FinalReport != "final draft" {
		t.Errorf("Silent reviewer should default-approve, got %q", state.FinalReport)
	}
}

func TestGraphExhaustedResearchBudgetForcesWriter(t *testing.T) {
	svc := &scriptedService{
		toolResponses: []*llm.Response{
			// supervisor keeps asking for research
			{ToolCalls: []llm.ToolCall{toolCall("conduct_research", map[string]any{"topic": "t1"})}},
			{Text: "note 1"},
			{ToolCalls: []llm.ToolCall{toolCall("conduct_research", map[string]any{"topic": "t2"})}},
			// reviewer approves
			{ToolCalls: []llm.ToolCall{toolCall("approve_report", nil)}},
		},
		chatResponses: []string{"the report"},
	}

	g := NewGraph(svc, &fakeSearch{name: "Primary"}, nil, nil, nil)
	state := testState(1, 3)

	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.ResearchIterations != 1 {
		t.Errorf("Budget of 1 should cap research, got %d", state.ResearchIterations)
	}
	if state.FinalReport != "the report" {
		t.Errorf("Unexpected report %q", state.FinalReport)
	}
}

func TestGraphCompressesLongNotes(t *testing.T) {
	long := strings.Repeat("finding. ", 300) // ~2700 chars
	svc := &scriptedService{
		toolResponses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{toolCall("conduct_research", map[string]any{"topic": "t"})}},
			{Text: long},
			{ToolCalls: []llm.ToolCall{toolCall("research_complete", map[string]any{"summary": "done"})}},
			{ToolCalls: []llm.ToolCall{toolCall("approve_report", nil)}},
		},
		// first Chat call compresses the note, second writes the draft
		chatResponses: []string{"compressed findings", "draft"},
	}

	g := NewGraph(svc, &fakeSearch{name: "Primary"}, nil, nil, nil)
	state := testState(5, 3)

	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.ResearchNotes[0] != "compressed findings" {
		t.Errorf("Long note should be compressed, got %q", state.ResearchNotes[0])
	}
}

func TestWebSearchFallsBack(t *testing.T) {
	primary := &fakeSearch{name: "Primary", fail: true}
	fallback := &fakeSearch{name: "Fallback"}
	tb := &toolbox{primary: primary, fallback: fallback, state: testState(5, 3)}

	out := tb.webSearch(context.Background(), []string{"q1", "q2"})
	if !strings.Contains(out, "Hit for q1") || !strings.Contains(out, "Hit for q2") {
		t.Errorf("Fallback results missing: %q", out)
	}
	if primary.calls() != 2 || fallback.calls() != 2 {
		t.Errorf("Both backends should see both queries: primary=%d fallback=%d", primary.calls(), fallback.calls())
	}
}

func TestWebSearchCapsQueries(t *testing.T) {
	primary := &fakeSearch{name: "Primary"}
	tb := &toolbox{primary: primary, state: testState(5, 3)}

	tb.webSearch(context.Background(), []string{"a", "b", "c", "d", "e"})
	if primary.calls() != 3 {
		t.Errorf("Queries should cap at 3, got %d", primary.calls())
	}
}

func TestParseIssueTitle(t *testing.T) {
	cases := []struct {
		in    string
		id    string
		title string
		ok    bool
	}{
		{"[Analysis] 2501.12345: Sparse Attention", "2501.12345", "Sparse Attention", true},
		{"[analysis] 2501.12345v2: Versioned Title", "2501.12345", "Versioned Title", true},
		{"[ANALYSIS]2501.00001:NoSpaces", "2501.00001", "NoSpaces", true},
		{"Regular issue title", "", "", false},
		{"[Analysis] not-an-id: Title", "", "", false},
	}
	for _, c := range cases {
		id, title, ok := ParseIssueTitle(c.in)
		if ok != c.ok || id != c.id || title != c.title {
			t.Errorf("ParseIssueTitle(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.in, id, title, ok, c.id, c.title, c.ok)
		}
	}
}
