package oracle

import (
	"context"
)

// Message represents a message in the conversation.
type Message interface {
	// ToParam converts the message to a provider-specific parameter type.
	ToParam() any
}

// Response represents a response from the LLM.
type Response interface {
	// Content returns the content blocks from the response.
	Content() []ContentBlock
	// ToMessage converts the response to a Message for the conversation history.
	ToMessage() Message
}

// ContentBlock represents a content block in a response.
type ContentBlock interface {
	// AsText returns text content if this is a text block.
	AsText() (text string, ok bool)
	// AsToolUse returns tool use information if this is a tool use block.
	AsToolUse() (id, name string, input []byte, ok bool)
}

// ToolUse represents a tool use request from the LLM.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	ID      string
	Content string
	IsError bool
}

// Tool represents a capability the LLM may call during a run.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolClient is an interface for calling granted capabilities.
type ToolClient interface {
	// ListTools returns the granted tools.
	ListTools(ctx context.Context) ([]Tool, error)
	// CallToolText calls a tool and returns the result as text. A failed
	// tool call is reported via isError, not err; err is reserved for
	// infrastructure failures.
	CallToolText(ctx context.Context, name string, args map[string]any) (result string, isError bool, err error)
}

// LLMClient is an interface for interacting with an LLM provider.
type LLMClient interface {
	// Call sends messages to the LLM and returns a response.
	Call(ctx context.Context, messages []Message, tools []Tool) (Response, error)
	// ConvertToolResults converts tool results to messages for the LLM.
	ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error)
	// CreateUserMessage creates a user message in provider format.
	CreateUserMessage(content string) Message
}

// StructuredTool describes a forced structured-output shape: the model is
// required to respond by calling a tool with this name and input schema.
type StructuredTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// RunResult contains the result of running an agent loop.
type RunResult struct {
	// FinalText is the final text response from the agent.
	FinalText string
	// Rounds is the number of LLM round-trips used.
	Rounds int
}
