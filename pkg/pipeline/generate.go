package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/pkg/oracle"
	"github.com/askdb/askdb/pkg/tools"
)

// generateStage turns the natural-language question into a candidate SQL
// query through a bounded oracle loop over the schema-introspection
// capabilities. It always routes to Check, even when the loop produced
// prose instead of SQL (e.g. an empty database).
type generateStage struct {
	log   *slog.Logger
	agent *oracle.Agent
}

func newGenerateStage(cfg *Config) (*generateStage, error) {
	granted, err := cfg.Tools.Grant(tools.CapListTables, tools.CapGetSchema)
	if err != nil {
		return nil, err
	}
	agent, err := oracle.NewAgent(&oracle.AgentConfig{
		Logger:             cfg.Logger,
		LLM:                cfg.Oracle.LLM(generateSystemPrompt),
		ToolClient:         granted,
		MaxRounds:          cfg.MaxSteps,
		FinalizationPrompt: generateFinalizationPrompt,
	})
	if err != nil {
		return nil, err
	}
	return &generateStage{log: cfg.Logger, agent: agent}, nil
}

func (s *generateStage) run(ctx context.Context, buf *Buffer) (StageResult, error) {
	question := buf.Last().Content

	result, err := s.agent.Run(ctx, question)
	if err != nil {
		return StageResult{}, fmt.Errorf("oracle loop failed: %w", err)
	}

	content := strings.TrimSpace(result.FinalText)
	if content == "" {
		// Step ceiling reached without any text: still hand a best-effort
		// message forward so the pipeline terminates with a response.
		if s.log != nil {
			s.log.Warn("generate: no output from oracle loop", "rounds", result.Rounds)
		}
		content = fallbackNoQuery
	}

	return StageResult{
		Message: Message{Content: content, Origin: OriginGenerate},
		Next:    StageCheck,
	}, nil
}
