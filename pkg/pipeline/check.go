package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/askdb/askdb/pkg/oracle"
	"github.com/askdb/askdb/pkg/tools"
)

// checkedQuery is the forced output shape of the Check stage.
type checkedQuery struct {
	Query string `json:"query"`
}

// checkStage reviews the candidate SQL with exactly one oracle call and a
// forced structured output. It has no schema access and no retry loop, and
// always routes to Execute.
//
// Payloads that do not look like SQL (the Generate loop may emit prose, for
// instance when the database has no tables) short-circuit through unchanged
// rather than being "corrected" as if they were SQL.
type checkStage struct {
	log    *slog.Logger
	oracle Oracle
	tool   oracle.StructuredTool
}

func newCheckStage(cfg *Config) (*checkStage, error) {
	schema, err := jsonschema.For[checkedQuery](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build output schema: %w", err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to decode output schema: %w", err)
	}

	return &checkStage{
		log:    cfg.Logger,
		oracle: cfg.Oracle,
		tool: oracle.StructuredTool{
			Name:        "record_query",
			Description: "Record the reviewed PostgreSQL query: the corrected query if anything was wrong, otherwise the original query unchanged.",
			InputSchema: schemaMap,
		},
	}, nil
}

func (s *checkStage) run(ctx context.Context, buf *Buffer) (StageResult, error) {
	candidate := buf.Last().Content

	if !looksLikeSQL(tools.StripFences(candidate)) {
		if s.log != nil {
			s.log.Info("check: non-SQL payload, passing through")
		}
		return StageResult{
			Message: Message{Content: candidate, Origin: OriginCheck},
			Next:    StageExecute,
		}, nil
	}

	raw, err := s.oracle.CompleteStructured(ctx, checkSystemPrompt, "Query:\n"+candidate, s.tool)
	if err != nil {
		return StageResult{}, fmt.Errorf("oracle call failed: %w", err)
	}

	var out checkedQuery
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.Query) == "" {
		// Malformed structured output: trust the candidate rather than fail
		// the request.
		if s.log != nil {
			s.log.Warn("check: malformed structured output, keeping candidate", "error", err)
		}
		out.Query = candidate
	}

	return StageResult{
		Message: Message{Content: out.Query, Origin: OriginCheck},
		Next:    StageExecute,
	}, nil
}

// sqlLeadKeywords are the statement-leading keywords the Check stage accepts
// as "this payload is SQL".
var sqlLeadKeywords = []string{
	"select", "with", "insert", "update", "delete",
	"create", "alter", "drop", "truncate", "explain", "show",
}

// looksLikeSQL reports whether a fence-stripped payload starts with a SQL
// statement keyword.
func looksLikeSQL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, kw := range sqlLeadKeywords {
		if s == kw || strings.HasPrefix(s, kw+" ") || strings.HasPrefix(s, kw+"\n") || strings.HasPrefix(s, kw+"\t") {
			return true
		}
	}
	return false
}
