package deep

import (
	"fmt"
	"strings"
)

func supervisorPrompt(state *State) string {
	var b strings.Builder
	b.WriteString(`You are the supervisor of a deep paper analysis. You decide what to research next, or whether enough evidence has been gathered to write the report.

Use conduct_research for one focused topic at a time. Call research_complete once the notes cover: the paper's contribution, how it relates to prior work, the strength of its evidence, and its limitations.

`)
	fmt.Fprintf(&b, "Paper: %s (arXiv:%s)\n\nAbstract:\n%s\n", state.PaperTitle, state.PaperID, state.PaperAbstract)
	if state.Requirements != "" {
		fmt.Fprintf(&b, "\nRequester's instructions:\n%s\n", state.Requirements)
	}
	fmt.Fprintf(&b, "\nResearch budget: %d of %d rounds used.\n", state.ResearchIterations, state.MaxIterations)
	if len(state.ResearchNotes) > 0 {
		b.WriteString("\nNotes gathered so far:\n")
		for i, note := range state.ResearchNotes {
			fmt.Fprintf(&b, "%d. %s\n", i+1, note)
		}
	}
	return b.String()
}

func researcherPrompt(state *State) string {
	var b strings.Builder
	b.WriteString(`You are a research assistant investigating one focused topic about a paper. Use the tools to gather evidence, then answer with a single dense note: concrete findings, numbers, and how they bear on the topic. No preamble.

`)
	fmt.Fprintf(&b, "Paper under analysis: %s (arXiv:%s)\n\nAbstract:\n%s\n", state.PaperTitle, state.PaperID, state.PaperAbstract)
	if state.PaperSectionsAvailable {
		fmt.Fprintf(&b, "\nThe paper's fulltext is available through paper_reader (%d sections).\n", state.PaperTotalSections)
	}
	return b.String()
}

const writerSystemPrompt = `You are a technical writer producing a deep-analysis report of one research paper for expert readers. Write in Markdown with these sections: Summary, Background, Method, Evidence & Results, Relation to Prior Work, Limitations, Verdict. Be specific; cite the research notes rather than inventing claims.`

func writerPrompt(state *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper: %s (arXiv:%s)\n\nAbstract:\n%s\n", state.PaperTitle, state.PaperID, state.PaperAbstract)

	if state.PaperFullContent != "" {
		fmt.Fprintf(&b, "\nPaper content:\n%s\n", state.PaperFullContent)
	}
	if state.PaperTablesContent != "" {
		fmt.Fprintf(&b, "\nTables:\n%s\n", state.PaperTablesContent)
	}
	if state.PaperFiguresContent != "" {
		fmt.Fprintf(&b, "\nFigures:\n%s\n", state.PaperFiguresContent)
	}
	if state.Requirements != "" {
		fmt.Fprintf(&b, "\nRequester's instructions:\n%s\n", state.Requirements)
	}

	b.WriteString("\nResearch notes:\n")
	for i, note := range state.ResearchNotes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, note)
	}

	if state.ReviewFeedback != "" {
		fmt.Fprintf(&b, "\nThe previous draft was rejected. Reviewer feedback:\n%s\n\nPrevious draft:\n%s\n\nRevise the draft accordingly.\n",
			state.ReviewFeedback, state.DraftReport)
	}
	return b.String()
}

func reviewerPrompt(state *State) string {
	return fmt.Sprintf(`You review a deep-analysis report of the paper %q before publication. Approve it with approve_report if it is specific, grounded in the research notes, and covers method, evidence and limitations. Otherwise call request_revision with concrete feedback. This is revision %d of at most %d.`,
		state.PaperTitle, state.WriteIterations, state.MaxWriteIterations)
}
