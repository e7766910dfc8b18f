package deep

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"insight/internal/arxiv"
	"insight/internal/llm"
	"insight/internal/logger"
	"insight/internal/search"
)

// webSearchMaxConcurrent bounds how many of one tool call's queries run
// at once.
const webSearchMaxConcurrent = 3

var supervisorToolset = []llm.Tool{
	{
		Name:        "conduct_research",
		Description: "Dispatch one focused research task to the researcher.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"topic": {Type: genai.TypeString, Description: "The specific question to research next."},
			},
			Required: []string{"topic"},
		},
	},
	{
		Name:        "research_complete",
		Description: "Declare research finished and hand off to the report writer.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary": {Type: genai.TypeString, Description: "One-paragraph summary of the gathered evidence."},
			},
			Required: []string{"summary"},
		},
	},
}

var reviewerToolset = []llm.Tool{
	{
		Name:        "approve_report",
		Description: "Approve the draft report as final.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"comment": {Type: genai.TypeString},
			},
		},
	},
	{
		Name:        "request_revision",
		Description: "Reject the draft and request a revision.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"feedback": {Type: genai.TypeString, Description: "Concrete, actionable revision feedback."},
			},
			Required: []string{"feedback"},
		},
	},
}

// researcherTools returns the tool set for one research round. The
// paper_reader tool only exists when the fulltext parsed.
func researcherTools(sectionsAvailable bool) []llm.Tool {
	tools := []llm.Tool{
		{
			Name:        "web_search",
			Description: "Search the web. Pass up to 3 focused queries.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"queries": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"queries"},
			},
		},
		{
			Name:        "arxiv_loader",
			Description: "Load title, authors and abstract of another arXiv paper by id.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"paper_id": {Type: genai.TypeString},
				},
				Required: []string{"paper_id"},
			},
		},
	}
	if sectionsAvailable {
		tools = append(tools, llm.Tool{
			Name:        "paper_reader",
			Description: "Read the analyzed paper itself: a named section, keyword excerpts, or the outline when called without arguments.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"section":         {Type: genai.TypeString, Description: "Section name, e.g. method, results, conclusion."},
					"keyword":         {Type: genai.TypeString, Description: "Search the fulltext for this term."},
					"include_tables":  {Type: genai.TypeBoolean},
					"include_figures": {Type: genai.TypeBoolean},
				},
			},
		})
	}
	return tools
}

// toolbox executes researcher tool calls against the live backends.
type toolbox struct {
	primary  search.Provider
	fallback search.Provider
	arxiv    *arxiv.Client
	reader   *arxiv.Reader
	state    *State
}

// dispatch runs one tool call and renders its result as text.
func (t *toolbox) dispatch(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case "web_search":
		return t.webSearch(ctx, stringSlice(call.Args["queries"]))
	case "arxiv_loader":
		id, _ := call.Args["paper_id"].(string)
		return t.arxivLoader(ctx, id)
	case "paper_reader":
		return t.paperReader(call)
	default:
		return fmt.Sprintf("unknown tool: %s", call.Name)
	}
}

// webSearch runs the queries concurrently against the primary backend
// and retries the whole batch on the fallback when every query failed.
func (t *toolbox) webSearch(ctx context.Context, queries []string) string {
	if len(queries) == 0 {
		return "no queries given"
	}
	if len(queries) > webSearchMaxConcurrent {
		queries = queries[:webSearchMaxConcurrent]
	}

	out := t.searchWith(ctx, t.primary, queries)
	if out == "" && t.fallback != nil {
		logger.Warn("Primary search backend failed, using fallback",
			"primary", t.primary.Name(), "fallback", t.fallback.Name())
		out = t.searchWith(ctx, t.fallback, queries)
	}
	if out == "" {
		return "web search failed for all queries"
	}
	return out
}

func (t *toolbox) searchWith(ctx context.Context, provider search.Provider, queries []string) string {
	results := make([][]search.Result, len(queries))
	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(slot int, q string) {
			defer wg.Done()
			hits, err := provider.Search(ctx, q)
			if err != nil {
				logger.Warn("Search query failed", "backend", provider.Name(), "query", q, "error", err.Error())
				return
			}
			results[slot] = hits
		}(i, query)
	}
	wg.Wait()

	var b strings.Builder
	for i, hits := range results {
		if len(hits) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Query: %s\n", queries[i])
		for _, hit := range hits {
			fmt.Fprintf(&b, "- %s (%s)\n  %s\n", hit.Title, hit.URL, hit.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (t *toolbox) arxivLoader(ctx context.Context, paperID string) string {
	if paperID == "" {
		return "paper_id is required"
	}
	papers, err := t.arxiv.FetchByIDs(ctx, []string{arxiv.CanonicalID(paperID)})
	if err != nil {
		return fmt.Sprintf("arxiv lookup failed: %v", err)
	}
	if len(papers) == 0 {
		return fmt.Sprintf("no arXiv paper found for id %s", paperID)
	}
	p := papers[0]
	return fmt.Sprintf("Title: %s\nAuthors: %s\nPublished: %s\n\nAbstract:\n%s",
		p.Title, strings.Join(p.Authors, ", "), p.Published.Format("2006-01-02"), p.Abstract)
}

// paperReader answers from the parsed fulltext. With no arguments it
// returns the overview.
func (t *toolbox) paperReader(call llm.ToolCall) string {
	if t.reader == nil {
		return "paper fulltext is not available"
	}

	var b strings.Builder

	section, _ := call.Args["section"].(string)
	keyword, _ := call.Args["keyword"].(string)

	switch {
	case section != "":
		text, ok := t.reader.Section(section)
		if !ok {
			return fmt.Sprintf("section %q not found", section)
		}
		b.WriteString(text)
	case keyword != "":
		excerpts := t.reader.Keyword(keyword)
		if len(excerpts) == 0 {
			return fmt.Sprintf("keyword %q not found in the paper", keyword)
		}
		for _, excerpt := range excerpts {
			fmt.Fprintf(&b, "…%s…\n\n", excerpt)
		}
	default:
		b.WriteString(t.reader.Overview())
	}

	if include, _ := call.Args["include_tables"].(bool); include && t.state.PaperTablesContent != "" {
		b.WriteString("\n\nTables:\n" + t.state.PaperTablesContent)
	}
	if include, _ := call.Args["include_figures"].(bool); include && t.state.PaperFiguresContent != "" {
		b.WriteString("\n\nFigures:\n" + t.state.PaperFiguresContent)
	}
	return strings.TrimSpace(b.String())
}

func stringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vs}
	default:
		return nil
	}
}
