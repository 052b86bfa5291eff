package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
)

const maxCallAttempts = 3

// AnthropicOracle is the Anthropic-backed oracle. It hands out per-stage
// LLM clients that share one underlying API client, and supports one-shot
// completions with a forced structured output shape.
type AnthropicOracle struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicOracle creates an oracle backed by the Anthropic API.
func NewAnthropicOracle(apiKey string, model anthropic.Model, maxTokens int64) *AnthropicOracle {
	return &AnthropicOracle{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// LLM returns an LLMClient bound to the given system prompt.
func (o *AnthropicOracle) LLM(system string) LLMClient {
	return &anthropicLLM{
		client:    o.client,
		model:     o.model,
		maxTokens: o.maxTokens,
		system:    system,
	}
}

// CompleteStructured sends one prompt and forces the model to respond by
// calling the given tool, returning the raw JSON input of that call.
func (o *AnthropicOracle) CompleteStructured(ctx context.Context, system, prompt string, tool StructuredTool) (json.RawMessage, error) {
	toolParam := anthropic.ToolParam{
		Name:        tool.Name,
		Description: anthropic.Opt(tool.Description),
		InputSchema: toInputSchema(tool.InputSchema),
	}
	params := anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools:      []anthropic.ToolUnionParam{{OfTool: &toolParam}},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tool.Name}},
	}

	resp, err := callWithRetry(ctx, o.client, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	for _, blk := range resp.Content {
		tu := blk.AsToolUse()
		if tu.Name == tool.Name {
			return json.RawMessage(tu.Input), nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", tool.Name)
}

// anthropicLLM implements LLMClient for Anthropic with a fixed system prompt.
type anthropicLLM struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
}

// Call sends messages to Anthropic and returns a response.
func (a *anthropicLLM) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	anthropicMsgs := make([]anthropic.MessageParam, len(messages))
	for i, msg := range messages {
		param, ok := msg.ToParam().(anthropic.MessageParam)
		if !ok {
			return nil, fmt.Errorf("expected anthropic.MessageParam, got %T", msg.ToParam())
		}
		anthropicMsgs[i] = param
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  anthropicMsgs,
		Tools:     toAnthropicTools(tools),
	}
	if a.system != "" {
		// Cache the static system prompt; it is reused across every round
		// of a stage's tool loop.
		params.System = []anthropic.TextBlockParam{
			{
				Text:         a.system,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		}
	}

	resp, err := callWithRetry(ctx, a.client, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return anthropicResponse{resp: resp}, nil
}

// ConvertToolResults converts tool results to a single Anthropic user message.
func (a *anthropicLLM) ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, result := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(result.ID, result.Content, result.IsError))
	}
	return []Message{AnthropicMessage{Msg: anthropic.NewUserMessage(blocks...)}}, nil
}

// CreateUserMessage creates a user message in Anthropic format.
func (a *anthropicLLM) CreateUserMessage(content string) Message {
	return AnthropicMessage{Msg: anthropic.NewUserMessage(anthropic.NewTextBlock(content))}
}

// callWithRetry issues a Messages.New call with exponential backoff for
// transient transport failures.
func callWithRetry(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return backoff.Retry(ctx, func() (*anthropic.Message, error) {
		return client.Messages.New(ctx, params)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxCallAttempts))
}

// AnthropicMessage wraps Anthropic's MessageParam to implement Message.
type AnthropicMessage struct {
	Msg anthropic.MessageParam
}

func (m AnthropicMessage) ToParam() any {
	return m.Msg
}

// anthropicResponse wraps Anthropic's response to implement Response.
type anthropicResponse struct {
	resp *anthropic.Message
}

func (r anthropicResponse) Content() []ContentBlock {
	blocks := make([]ContentBlock, len(r.resp.Content))
	for i, blk := range r.resp.Content {
		blocks[i] = anthropicContentBlock{blk}
	}
	return blocks
}

func (r anthropicResponse) ToMessage() Message {
	return AnthropicMessage{Msg: r.resp.ToParam()}
}

// anthropicContentBlock wraps Anthropic's ContentBlockUnion to implement ContentBlock.
type anthropicContentBlock struct {
	blk anthropic.ContentBlockUnion
}

func (b anthropicContentBlock) AsText() (string, bool) {
	text := b.blk.AsText()
	if text.Text == "" {
		return "", false
	}
	return text.Text, true
}

func (b anthropicContentBlock) AsToolUse() (string, string, []byte, bool) {
	tu := b.blk.AsToolUse()
	if tu.ID == "" || tu.Name == "" {
		return "", "", nil, false
	}
	return tu.ID, tu.Name, tu.Input, true
}

// toAnthropicTools converts tools to Anthropic tool parameters.
func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.Opt(t.Description),
			InputSchema: toInputSchema(t.InputSchema),
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

// toInputSchema converts a JSON-schema map into Anthropic's input schema
// parameter. The required list may arrive as []string (hand-built schemas)
// or []any (schemas round-tripped through JSON).
func toInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	switch req := schema["required"].(type) {
	case []string:
		required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}
