package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const defaultMaxRounds = 8

// AgentConfig is the configuration for a bounded tool-calling agent loop.
type AgentConfig struct {
	Logger     *slog.Logger
	LLM        LLMClient
	ToolClient ToolClient
	// MaxRounds is the step ceiling: the maximum number of LLM round-trips
	// before the loop is forced to finalize.
	MaxRounds int
	// FinalizationPrompt is injected on the last round so the model produces
	// a best-effort answer instead of another tool call.
	FinalizationPrompt string
}

func (cfg *AgentConfig) Validate() error {
	if cfg.LLM == nil {
		return errors.New("LLM is required")
	}
	if cfg.ToolClient == nil {
		return errors.New("tool client is required")
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxRounds < 0 {
		return errors.New("max rounds must be greater than 0")
	}
	if cfg.FinalizationPrompt == "" {
		return errors.New("finalization prompt is required")
	}
	return nil
}

// Agent runs a bounded tool-calling loop against an LLM. The loop ends when
// the model responds without tool calls, or when the step ceiling is reached,
// whichever comes first.
type Agent struct {
	log *slog.Logger
	cfg *AgentConfig
}

// NewAgent creates a new agent.
func NewAgent(cfg *AgentConfig) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run executes the tool-calling loop seeded with the given prompt.
// It always terminates within MaxRounds round-trips.
func (a *Agent) Run(ctx context.Context, prompt string) (*RunResult, error) {
	msgs := []Message{a.cfg.LLM.CreateUserMessage(prompt)}

	tools, err := a.cfg.ToolClient.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	for round := 1; round <= a.cfg.MaxRounds; round++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		isLastRound := round == a.cfg.MaxRounds
		if isLastRound {
			if a.log != nil {
				a.log.Info("agent: injecting finalization prompt on last round", "round", round)
			}
			msgs = append(msgs, a.cfg.LLM.CreateUserMessage(a.cfg.FinalizationPrompt))
		}

		response, err := a.cfg.LLM.Call(ctx, msgs, tools)
		if err != nil {
			return nil, fmt.Errorf("failed to get response: %w", err)
		}

		msgs = append(msgs, response.ToMessage())

		toolUses := extractToolUses(response.Content())
		if len(toolUses) == 0 || isLastRound {
			if a.log != nil {
				a.log.Info("agent: returning final response", "round", round, "pending_tool_calls", len(toolUses))
			}
			return &RunResult{
				FinalText: strings.TrimSpace(collectText(response.Content())),
				Rounds:    round,
			}, nil
		}

		if a.log != nil {
			a.log.Info("agent: executing tool calls", "round", round, "count", len(toolUses))
		}

		toolResults := a.executeTools(ctx, toolUses)
		resultMsgs, err := a.cfg.LLM.ConvertToolResults(toolUses, toolResults)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool results: %w", err)
		}
		msgs = append(msgs, resultMsgs...)
	}

	// Unreachable: the last round always returns above.
	return nil, fmt.Errorf("exceeded maximum rounds (%d)", a.cfg.MaxRounds)
}

// extractToolUses extracts tool use requests from response content blocks.
func extractToolUses(content []ContentBlock) []ToolUse {
	var toolUses []ToolUse
	for _, blk := range content {
		id, name, inputBytes, ok := blk.AsToolUse()
		if !ok || id == "" || name == "" {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal(inputBytes, &input); err != nil {
			continue
		}
		toolUses = append(toolUses, ToolUse{
			ID:    id,
			Name:  name,
			Input: input,
		})
	}
	return toolUses
}

// collectText concatenates the text blocks of a response.
func collectText(content []ContentBlock) string {
	var sb strings.Builder
	for _, blk := range content {
		if text, ok := blk.AsText(); ok && text != "" {
			sb.WriteString(text)
		}
	}
	return sb.String()
}

// executeTools executes tool calls in parallel and returns results in order.
// Tool failures become error-flagged results fed back to the model, never
// loop-aborting errors.
func (a *Agent) executeTools(ctx context.Context, toolUses []ToolUse) []ToolResult {
	type callOutcome struct {
		out   string
		isErr bool
		err   error
	}

	outcomes := make([]callOutcome, len(toolUses))
	var wg sync.WaitGroup
	for i, tu := range toolUses {
		wg.Add(1)
		go func(idx int, toolUse ToolUse) {
			defer wg.Done()
			out, isErr, callErr := a.cfg.ToolClient.CallToolText(ctx, toolUse.Name, toolUse.Input)
			outcomes[idx] = callOutcome{out: out, isErr: isErr, err: callErr}
		}(i, tu)
	}
	wg.Wait()

	results := make([]ToolResult, 0, len(toolUses))
	for i, outcome := range outcomes {
		if outcome.err != nil {
			if a.log != nil {
				a.log.Error("agent: tool execution error", "tool", toolUses[i].Name, "error", outcome.err)
			}
			results = append(results, ToolResult{
				ID:      toolUses[i].ID,
				Content: fmt.Sprintf("Error: %v", outcome.err),
				IsError: true,
			})
			continue
		}
		content := outcome.out
		if outcome.isErr {
			content = fmt.Sprintf("Error: %s", outcome.out)
		}
		results = append(results, ToolResult{
			ID:      toolUses[i].ID,
			Content: content,
			IsError: outcome.isErr,
		})
	}
	return results
}
