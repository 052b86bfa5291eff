package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/pkg/oracle"
	"github.com/askdb/askdb/pkg/tools"
)

// executeStage runs the vetted SQL through a bounded oracle loop granted
// only the query-execution capability, and phrases the outcome for a human
// reader. Execution failures and empty results are conversational answers,
// not errors. It always routes to the terminal state.
type executeStage struct {
	log   *slog.Logger
	agent *oracle.Agent
}

func newExecuteStage(cfg *Config) (*executeStage, error) {
	granted, err := cfg.Tools.Grant(tools.CapRunQuery)
	if err != nil {
		return nil, err
	}
	agent, err := oracle.NewAgent(&oracle.AgentConfig{
		Logger:             cfg.Logger,
		LLM:                cfg.Oracle.LLM(executeSystemPrompt),
		ToolClient:         granted,
		MaxRounds:          cfg.MaxSteps,
		FinalizationPrompt: executeFinalizationPrompt,
	})
	if err != nil {
		return nil, err
	}
	return &executeStage{log: cfg.Logger, agent: agent}, nil
}

func (s *executeStage) run(ctx context.Context, buf *Buffer) (StageResult, error) {
	// Fence markers must be gone before the query reaches the executor.
	payload := tools.StripFences(buf.Last().Content)

	result, err := s.agent.Run(ctx, fmt.Sprintf("Execute this SQL query and report the result:\n\n%s", payload))
	if err != nil {
		return StageResult{}, fmt.Errorf("oracle loop failed: %w", err)
	}

	content := strings.TrimSpace(result.FinalText)
	if content == "" {
		if s.log != nil {
			s.log.Warn("execute: no output from oracle loop", "rounds", result.Rounds)
		}
		content = fallbackNoAnswer
	}

	return StageResult{
		Message: Message{Content: content, Origin: OriginExecute},
		Next:    StageTerminal,
	}, nil
}
