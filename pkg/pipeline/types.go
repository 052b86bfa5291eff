package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/askdb/askdb/pkg/oracle"
	"github.com/askdb/askdb/pkg/tools"
)

// Origin identifies which stage produced a buffer message. Origins exist
// for logging and inspection, never for branching logic.
type Origin string

const (
	OriginUser     Origin = "user"
	OriginGenerate Origin = "generate"
	OriginCheck    Origin = "check"
	OriginExecute  Origin = "execute"
)

// Message is one immutable entry in the conversation buffer.
type Message struct {
	Content string
	Origin  Origin
}

// StageID names a pipeline state.
type StageID string

const (
	StageGenerate StageID = "generate"
	StageCheck    StageID = "check"
	StageExecute  StageID = "execute"
	StageTerminal StageID = "terminal"
)

// StageResult is the return contract of every stage: one new message plus a
// routing decision. Stages never mutate the buffer themselves; the machine
// applies the update.
type StageResult struct {
	Message Message
	Next    StageID
}

// Buffer is the per-request conversation buffer: an append-only ordered
// sequence of messages whose last entry is the authoritative current output.
type Buffer struct {
	msgs []Message
}

// NewBuffer creates a buffer seeded with the user's question.
func NewBuffer(question string) *Buffer {
	return &Buffer{msgs: []Message{{Content: question, Origin: OriginUser}}}
}

// Append adds one message to the end of the buffer.
func (b *Buffer) Append(m Message) {
	b.msgs = append(b.msgs, m)
}

// Last returns the most recent message.
func (b *Buffer) Last() Message {
	return b.msgs[len(b.msgs)-1]
}

// Len returns the number of messages in the buffer.
func (b *Buffer) Len() int {
	return len(b.msgs)
}

// Messages returns a copy of the buffer contents.
func (b *Buffer) Messages() []Message {
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Oracle is what the stages need from the LLM provider: per-stage clients
// for the bounded tool loops, and one-shot structured completions.
type Oracle interface {
	LLM(system string) oracle.LLMClient
	CompleteStructured(ctx context.Context, system, prompt string, tool oracle.StructuredTool) (json.RawMessage, error)
}

// Config holds the configuration for the pipeline machine.
type Config struct {
	Logger *slog.Logger
	Oracle Oracle
	Tools  *tools.Registry
	// MaxSteps is the step ceiling for the Generate and Execute tool loops.
	// Zero selects the default.
	MaxSteps int
}

// Result holds the outcome of one pipeline run.
type Result struct {
	// Answer is the content of the final message, the only part exposed to
	// the caller.
	Answer string
	// Transcript is the full buffer, retained for logging and tests.
	Transcript []Message
}
