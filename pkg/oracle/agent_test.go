package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMessage is a provider-neutral message for tests.
type testMessage struct {
	role    string
	content string
}

func (m testMessage) ToParam() any {
	return map[string]string{"role": m.role, "content": m.content}
}

// mockLLMClient replays scripted responses and records the prompts it saw.
type mockLLMClient struct {
	responses   []mockResponse
	callIndex   int
	userPrompts []string
}

type mockResponse struct {
	text      string
	toolCalls []mockToolCall
}

type mockToolCall struct {
	id    string
	name  string
	input map[string]any
}

func (m *mockLLMClient) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	if m.callIndex >= len(m.responses) {
		return &mockLLMResponse{}, nil
	}
	resp := m.responses[m.callIndex]
	m.callIndex++
	return &mockLLMResponse{text: resp.text, toolCalls: resp.toolCalls}, nil
}

func (m *mockLLMClient) ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error) {
	var msgs []Message
	for i, tu := range toolUses {
		msgs = append(msgs, testMessage{role: "tool", content: "Tool " + tu.Name + ": " + results[i].Content})
	}
	return msgs, nil
}

func (m *mockLLMClient) CreateUserMessage(content string) Message {
	m.userPrompts = append(m.userPrompts, content)
	return testMessage{role: "user", content: content}
}

// repeatingLLMClient always responds with the same tool call, simulating an
// oracle that never signals completion.
type repeatingLLMClient struct {
	calls int
}

func (m *repeatingLLMClient) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	m.calls++
	return &mockLLMResponse{
		toolCalls: []mockToolCall{{id: fmt.Sprintf("call-%d", m.calls), name: "list_tables", input: map[string]any{}}},
	}, nil
}

func (m *repeatingLLMClient) ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error) {
	return []Message{testMessage{role: "tool", content: results[0].Content}}, nil
}

func (m *repeatingLLMClient) CreateUserMessage(content string) Message {
	return testMessage{role: "user", content: content}
}

type mockLLMResponse struct {
	text      string
	toolCalls []mockToolCall
}

func (r *mockLLMResponse) Content() []ContentBlock {
	var blocks []ContentBlock
	for _, tc := range r.toolCalls {
		blocks = append(blocks, &mockToolUseBlock{id: tc.id, name: tc.name, input: tc.input})
	}
	if r.text != "" {
		blocks = append(blocks, &mockTextBlock{text: r.text})
	}
	return blocks
}

func (r *mockLLMResponse) ToMessage() Message {
	return testMessage{role: "assistant", content: r.text}
}

type mockTextBlock struct {
	text string
}

func (b *mockTextBlock) AsText() (string, bool) {
	return b.text, true
}

func (b *mockTextBlock) AsToolUse() (string, string, []byte, bool) {
	return "", "", nil, false
}

type mockToolUseBlock struct {
	id    string
	name  string
	input map[string]any
}

func (b *mockToolUseBlock) AsText() (string, bool) {
	return "", false
}

func (b *mockToolUseBlock) AsToolUse() (string, string, []byte, bool) {
	inputBytes, _ := json.Marshal(b.input)
	return b.id, b.name, inputBytes, true
}

// mockToolClient serves fixed tools and canned results.
type mockToolClient struct {
	tools   []Tool
	results map[string]mockToolResult
	calls   []string
}

type mockToolResult struct {
	content string
	isError bool
}

func (m *mockToolClient) ListTools(ctx context.Context) ([]Tool, error) {
	return m.tools, nil
}

func (m *mockToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	m.calls = append(m.calls, name)
	if result, ok := m.results[name]; ok {
		return result.content, result.isError, nil
	}
	return "no result", false, nil
}

func TestAgent_Run_CompletesWhenModelStopsCallingTools(t *testing.T) {
	llm := &mockLLMClient{
		responses: []mockResponse{
			{
				text:      "Checking the schema.",
				toolCalls: []mockToolCall{{id: "1", name: "list_tables", input: map[string]any{}}},
			},
			{
				text: "SELECT COUNT(*) FROM users",
			},
		},
	}
	toolClient := &mockToolClient{
		tools:   []Tool{{Name: "list_tables", Description: "List tables", InputSchema: map[string]any{}}},
		results: map[string]mockToolResult{"list_tables": {content: "users, orders"}},
	}

	agent, err := NewAgent(&AgentConfig{
		LLM:                llm,
		ToolClient:         toolClient,
		MaxRounds:          5,
		FinalizationPrompt: "Provide your final output now.",
	})
	require.NoError(t, err)

	result, err := agent.Run(context.Background(), "How many users are there?")
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM users", result.FinalText)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, []string{"list_tables"}, toolClient.calls)
}

func TestAgent_Run_TerminatesAtStepCeiling(t *testing.T) {
	// The model never stops calling tools; the loop must still end within
	// the configured ceiling.
	llm := &repeatingLLMClient{}
	toolClient := &mockToolClient{
		tools:   []Tool{{Name: "list_tables", Description: "List tables", InputSchema: map[string]any{}}},
		results: map[string]mockToolResult{"list_tables": {content: "users"}},
	}

	agent, err := NewAgent(&AgentConfig{
		LLM:                llm,
		ToolClient:         toolClient,
		MaxRounds:          4,
		FinalizationPrompt: "Provide your final output now.",
	})
	require.NoError(t, err)

	result, err := agent.Run(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.Equal(t, 4, llm.calls, "expected exactly MaxRounds LLM calls")
	assert.Equal(t, 4, result.Rounds)
	// The last round returns despite pending tool calls; the repeating
	// client produces no text, so the result is empty rather than an error.
	assert.Empty(t, result.FinalText)
	// Tools run on every round except the last.
	assert.Len(t, toolClient.calls, 3)
}

func TestAgent_Run_FinalizationPromptInjectedOnLastRound(t *testing.T) {
	llm := &mockLLMClient{
		responses: []mockResponse{
			{toolCalls: []mockToolCall{{id: "1", name: "list_tables", input: map[string]any{}}}},
			{text: "SELECT 1"},
		},
	}
	toolClient := &mockToolClient{
		tools:   []Tool{{Name: "list_tables", Description: "List tables", InputSchema: map[string]any{}}},
		results: map[string]mockToolResult{"list_tables": {content: "users"}},
	}

	agent, err := NewAgent(&AgentConfig{
		LLM:                llm,
		ToolClient:         toolClient,
		MaxRounds:          2,
		FinalizationPrompt: "Provide your final output now.",
	})
	require.NoError(t, err)

	result, err := agent.Run(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1", result.FinalText)
	require.Len(t, llm.userPrompts, 2)
	assert.Equal(t, "question", llm.userPrompts[0])
	assert.Equal(t, "Provide your final output now.", llm.userPrompts[1])
}

func TestAgent_Run_ToolErrorFedBackToModel(t *testing.T) {
	llm := &mockLLMClient{
		responses: []mockResponse{
			{toolCalls: []mockToolCall{{id: "1", name: "run_query", input: map[string]any{"sql": "SELECT * FROM missing"}}}},
			{text: "The table does not exist."},
		},
	}
	toolClient := &mockToolClient{
		tools:   []Tool{{Name: "run_query", Description: "Execute SQL", InputSchema: map[string]any{}}},
		results: map[string]mockToolResult{"run_query": {content: `relation "missing" does not exist`, isError: true}},
	}

	agent, err := NewAgent(&AgentConfig{
		LLM:                llm,
		ToolClient:         toolClient,
		MaxRounds:          5,
		FinalizationPrompt: "Provide your final output now.",
	})
	require.NoError(t, err)

	result, err := agent.Run(context.Background(), "query the missing table")
	require.NoError(t, err)

	// The error became a tool result the model could react to, not a
	// loop-aborting failure.
	assert.Equal(t, "The table does not exist.", result.FinalText)
}

func TestAgentConfig_Validate(t *testing.T) {
	_, err := NewAgent(&AgentConfig{})
	require.Error(t, err)

	_, err = NewAgent(&AgentConfig{LLM: &mockLLMClient{}})
	require.Error(t, err)

	_, err = NewAgent(&AgentConfig{LLM: &mockLLMClient{}, ToolClient: &mockToolClient{}})
	require.Error(t, err, "finalization prompt is required")

	cfg := &AgentConfig{LLM: &mockLLMClient{}, ToolClient: &mockToolClient{}, FinalizationPrompt: "finish"}
	_, err = NewAgent(cfg)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRounds, cfg.MaxRounds)
}
