package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"insight/internal/config"
	"insight/internal/logger"
)

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. Assistant turns may carry tool
// calls; tool turns carry the result of executing one call.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	ToolName  string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *genai.Schema
}

// Response is the result of a tool-enabled chat turn.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResult builds a tool-result message for a previous call.
func ToolResult(name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: name}
}

// Service is the chat surface consumed by the analyzers, the report
// generator and the deep-analysis graph. Tests substitute fakes.
type Service interface {
	Chat(ctx context.Context, msgs []Message, opts ...CallOption) (string, error)
	ChatStructured(ctx context.Context, msgs []Message, schema *genai.Schema, out any, opts ...CallOption) error
	ChatTools(ctx context.Context, msgs []Message, tools []Tool, opts ...CallOption) (*Response, error)
}

type callOptions struct {
	temperature *float32
	maxTokens   int32
	model       string
}

// CallOption tunes a single call.
type CallOption func(*callOptions)

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float32) CallOption {
	return func(o *callOptions) { o.temperature = &t }
}

// WithMaxTokens caps the output tokens for one call.
func WithMaxTokens(n int32) CallOption {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithModel overrides the model for one call.
func WithModel(model string) CallOption {
	return func(o *callOptions) { o.model = model }
}

// Client talks to the Gemini API. It implements Service.
type Client struct {
	provider   string
	modelName  string
	gClient    *genai.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

var _ Service = (*Client)(nil)

// NewClient creates a client from the loaded configuration. Provider, model
// and API key come from the llm config section; timeout and retry bounds
// from the advanced section.
func NewClient() (*Client, error) {
	cfg := config.Get()
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required. Set LLM_API_KEY environment variable or llm.api_key in config file")
	}
	if cfg.LLM.Model == "" {
		return nil, fmt.Errorf("LLM model is required. Set LLM_MODEL environment variable or llm.model in config file")
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		provider:   cfg.LLM.Provider,
		modelName:  cfg.LLM.Model,
		gClient:    gClient,
		timeout:    time.Duration(cfg.Advanced.LLMTimeout) * time.Second,
		maxRetries: cfg.Advanced.LLMMaxRetries,
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the configured model name.
func (c *Client) Model() string { return c.modelName }

// Chat sends the conversation and returns the plain-text response.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts ...CallOption) (string, error) {
	resp, err := c.generate(ctx, msgs, nil, nil, opts)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", &Error{Kind: KindOther, Msg: "empty response from model"}
	}
	return text, nil
}

// ChatStructured sends the conversation with a response schema and decodes
// the JSON answer into out. Parse failures are retried up to the configured
// bound before a KindParse error is returned.
func (c *Client) ChatStructured(ctx context.Context, msgs []Message, schema *genai.Schema, out any, opts ...CallOption) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return classify(ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			logger.Debug("Retrying structured output", "attempt", attempt, "max_retries", c.maxRetries)
		}

		resp, err := c.generate(ctx, msgs, schema, nil, opts)
		if err != nil {
			return err
		}

		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("empty response from model")
			continue
		}

		if err := json.Unmarshal([]byte(text), out); err != nil {
			lastErr = err
			logger.Warn("Structured output decode failed", "attempt", attempt, "error", err.Error())
			continue
		}
		return nil
	}

	return &Error{
		Kind: KindParse,
		Msg:  fmt.Sprintf("structured output decode failed after %d attempts", c.maxRetries+1),
		Err:  lastErr,
	}
}

// ChatTools sends the conversation with tool declarations and returns the
// model's text plus any requested tool calls.
func (c *Client) ChatTools(ctx context.Context, msgs []Message, tools []Tool, opts ...CallOption) (*Response, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	resp, err := c.generate(ctx, msgs, nil, []*genai.Tool{{FunctionDeclarations: decls}}, opts)
	if err != nil {
		return nil, err
	}

	out := &Response{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return out, nil
}

// generate performs one GenerateContent call with retries on transient
// failures (rate limit, timeout). Schema and tools are mutually exclusive.
func (c *Client) generate(ctx context.Context, msgs []Message, schema *genai.Schema, tools []*genai.Tool, opts []CallOption) (*genai.GenerateContentResponse, error) {
	options := callOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	model := c.modelName
	if options.model != "" {
		model = options.model
	}

	cfg := &genai.GenerateContentConfig{}
	if options.temperature != nil {
		cfg.Temperature = genai.Ptr(*options.temperature)
	}
	if options.maxTokens > 0 {
		cfg.MaxOutputTokens = options.maxTokens
	}
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	if tools != nil {
		cfg.Tools = tools
	}

	system, contents := toGenaiContents(msgs)
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, classify(ctx.Err())
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.gClient.Models.GenerateContent(callCtx, model, contents, cfg)
		cancel()
		if err == nil {
			return resp, nil
		}

		lastErr = classify(err)
		kind := KindOf(lastErr)
		if kind != KindRateLimit && kind != KindTimeout {
			return nil, lastErr
		}
		logger.Warn("LLM call failed, retrying", "attempt", attempt, "kind", kind.String(), "error", err.Error())
	}

	return nil, lastErr
}

// toGenaiContents converts the neutral message log into genai contents.
// System messages are collected into a single system instruction.
func toGenaiContents(msgs []Message) (string, []*genai.Content) {
	var system string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case RoleAssistant:
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(""))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{
					genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"result": m.Content}),
				},
			})

		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
			})
		}
	}

	return system, contents
}
