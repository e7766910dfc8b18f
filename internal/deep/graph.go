package deep

import (
	"context"
	"fmt"
	"strings"

	"insight/internal/arxiv"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/search"
)

const (
	// maxToolRounds bounds the researcher's ReAct loop.
	maxToolRounds = 10

	// noteCompressThreshold / noteCompressTarget control research-note
	// compression.
	noteCompressThreshold = 1500
	noteCompressTarget    = 500

	supervisorTemperature = 0.3
	researcherTemperature = 0.3
	writerTemperature     = 0.5
	reviewerTemperature   = 0.3
)

type nodeName string

const (
	nodeSupervisor      nodeName = "supervisor"
	nodeSupervisorTools nodeName = "supervisor_tools"
	nodeResearcher      nodeName = "researcher"
	nodeWriter          nodeName = "writer"
	nodeReviewer        nodeName = "reviewer"
	nodeEnd             nodeName = "end"
)

// Graph executes the deep-analysis state machine over one State.
type Graph struct {
	svc   llm.Service
	tools *toolbox
}

// NewGraph wires the graph with its live backends. fallback may be nil.
func NewGraph(svc llm.Service, primary, fallback search.Provider, arxivClient *arxiv.Client, reader *arxiv.Reader) *Graph {
	return &Graph{
		svc:   svc,
		tools: &toolbox{primary: primary, fallback: fallback, arxiv: arxivClient, reader: reader},
	}
}

// Run drives the state machine from the supervisor entry node until END.
// On success state.FinalReport is set.
func (g *Graph) Run(ctx context.Context, state *State) error {
	g.tools.state = state

	node := nodeSupervisor
	for node != nodeEnd {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Debug("Graph step", "node", string(node),
			"research_iterations", state.ResearchIterations,
			"write_iterations", state.WriteIterations)

		current := node
		var err error
		switch current {
		case nodeSupervisor:
			node, err = g.supervisor(ctx, state)
		case nodeSupervisorTools:
			node, err = g.routeSupervisor(state)
		case nodeResearcher:
			node, err = g.researcher(ctx, state)
		case nodeWriter:
			node, err = g.writer(ctx, state)
		case nodeReviewer:
			node, err = g.reviewer(ctx, state)
		default:
			return fmt.Errorf("unknown graph node %q", current)
		}
		if err != nil {
			return fmt.Errorf("node %s: %w", current, err)
		}
	}

	if state.FinalReport == "" {
		return fmt.Errorf("graph ended without a final report")
	}
	return nil
}

// supervisor asks the routing model what to do next and appends its turn
// to the supervisor log.
func (g *Graph) supervisor(ctx context.Context, state *State) (nodeName, error) {
	msgs := []llm.Message{llm.System(supervisorPrompt(state))}
	msgs = append(msgs, state.SupervisorMessages...)
	if len(state.SupervisorMessages) == 0 {
		msgs = append(msgs, llm.User("Plan the analysis. Decide the first research topic or declare research complete."))
	}

	resp, err := g.svc.ChatTools(ctx, msgs, supervisorToolset, llm.WithTemperature(supervisorTemperature))
	if err != nil {
		return "", err
	}

	state.SupervisorMessages = append(state.SupervisorMessages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	})
	return nodeSupervisorTools, nil
}

// routeSupervisor interprets the supervisor's last turn: conduct_research
// routes to the researcher, research_complete to the writer. No tool call
// defaults to the researcher; an exhausted research budget forces the
// writer regardless.
func (g *Graph) routeSupervisor(state *State) (nodeName, error) {
	last := state.SupervisorMessages[len(state.SupervisorMessages)-1]

	state.NextAction = ActionResearch
	topic := ""

	for _, call := range last.ToolCalls {
		switch call.Name {
		case "conduct_research":
			topic, _ = call.Args["topic"].(string)
			state.NextAction = ActionResearch
			state.SupervisorMessages = append(state.SupervisorMessages,
				llm.ToolResult(call.Name, "research task accepted"))
		case "research_complete":
			state.NextAction = ActionWrite
			state.SupervisorMessages = append(state.SupervisorMessages,
				llm.ToolResult(call.Name, "handing off to the writer"))
		}
	}

	if state.NextAction == ActionResearch && state.ResearchIterations >= state.MaxIterations {
		logger.Info("Research budget exhausted, moving to writer",
			"iterations", state.ResearchIterations)
		state.NextAction = ActionWrite
	}

	if state.NextAction == ActionWrite {
		return nodeWriter, nil
	}

	if topic == "" {
		topic = "Key contributions and limitations of: " + state.PaperTitle
	}
	state.CurrentResearchTopic = topic
	return nodeResearcher, nil
}

// researcher runs one bounded ReAct loop on the current topic and
// appends a compressed note.
func (g *Graph) researcher(ctx context.Context, state *State) (nodeName, error) {
	msgs := []llm.Message{
		llm.System(researcherPrompt(state)),
		llm.User("Research topic: " + state.CurrentResearchTopic),
	}
	tools := researcherTools(state.PaperSectionsAvailable)

	note := ""
	for round := 0; round < maxToolRounds; round++ {
		resp, err := g.svc.ChatTools(ctx, msgs, tools, llm.WithTemperature(researcherTemperature))
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			note = resp.Text
			break
		}

		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := g.tools.dispatch(ctx, call)
			msgs = append(msgs, llm.ToolResult(call.Name, result))
		}
	}

	if note == "" {
		// Ran out of tool rounds without a synthesis; ask for one.
		msgs = append(msgs, llm.User("Summarize your findings on the topic now, without further tool use."))
		text, err := g.svc.Chat(ctx, msgs, llm.WithTemperature(researcherTemperature))
		if err != nil {
			return "", err
		}
		note = text
	}

	note, err := g.compressNote(ctx, note)
	if err != nil {
		return "", err
	}

	state.ResearchNotes = append(state.ResearchNotes, note)
	state.ResearchIterations++
	topic := state.CurrentResearchTopic
	state.CurrentResearchTopic = ""

	state.SupervisorMessages = append(state.SupervisorMessages,
		llm.User(fmt.Sprintf("Research note on %q:\n%s", topic, note)))
	return nodeSupervisor, nil
}

// compressNote shrinks oversized researcher output before it enters the
// note log.
func (g *Graph) compressNote(ctx context.Context, note string) (string, error) {
	if len([]rune(note)) <= noteCompressThreshold {
		return strings.TrimSpace(note), nil
	}

	compressed, err := g.svc.Chat(ctx, []llm.Message{
		llm.System(fmt.Sprintf("Compress the following research note to at most %d characters. Keep concrete facts, numbers and citations; drop narration.", noteCompressTarget)),
		llm.User(note),
	}, llm.WithTemperature(researcherTemperature))
	if err != nil {
		return "", err
	}
	if runes := []rune(compressed); len(runes) > noteCompressTarget {
		compressed = string(runes[:noteCompressTarget])
	}
	return strings.TrimSpace(compressed), nil
}

// writer produces or revises the draft report.
func (g *Graph) writer(ctx context.Context, state *State) (nodeName, error) {
	draft, err := g.svc.Chat(ctx, []llm.Message{
		llm.System(writerSystemPrompt),
		llm.User(writerPrompt(state)),
	}, llm.WithTemperature(writerTemperature))
	if err != nil {
		return "", err
	}

	state.DraftReport = strings.TrimSpace(draft)
	state.WriteIterations++
	state.ReviewFeedback = ""
	return nodeReviewer, nil
}

// reviewer approves the draft or sends it back, with a forced END once
// the write budget is spent.
func (g *Graph) reviewer(ctx context.Context, state *State) (nodeName, error) {
	resp, err := g.svc.ChatTools(ctx, []llm.Message{
		llm.System(reviewerPrompt(state)),
		llm.User(state.DraftReport),
	}, reviewerToolset, llm.WithTemperature(reviewerTemperature))
	if err != nil {
		return "", err
	}

	// Default approve when no tool is called.
	approve := true
	feedback := ""
	for _, call := range resp.ToolCalls {
		switch call.Name {
		case "approve_report":
			approve = true
		case "request_revision":
			if fb, ok := call.Args["feedback"].(string); ok && fb != "" {
				approve = false
				feedback = fb
			}
		}
	}

	if !approve && state.WriteIterations >= state.MaxWriteIterations {
		logger.Warn("Write budget exhausted, accepting current draft",
			"write_iterations", state.WriteIterations)
		approve = true
	}

	if approve {
		state.FinalReport = state.DraftReport
		state.NextAction = ActionEnd
		return nodeEnd, nil
	}

	state.ReviewFeedback = feedback
	state.NextAction = ActionWrite
	return nodeWriter, nil
}
