// Package pipeline implements the three-stage query pipeline and the state
// machine that sequences it: Generate produces a candidate SQL query from a
// natural-language question, Check reviews and corrects it, Execute runs it
// and phrases the outcome. The transition table is fixed and linear; there
// are no retries or cycles across stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxSteps is the default step ceiling for the Generate and Execute
// oracle loops.
const DefaultMaxSteps = 8

// Machine drives one request through the fixed stage sequence
// GENERATE -> CHECK -> EXECUTE -> TERMINAL.
type Machine struct {
	log *slog.Logger
	gen *generateStage
	chk *checkStage
	exe *executeStage
}

// New creates a pipeline machine. Capability grants are resolved here, so a
// missing capability fails at startup rather than mid-request.
func New(cfg *Config) (*Machine, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxSteps < 0 {
		return nil, errors.New("max steps must be greater than 0")
	}

	gen, err := newGenerateStage(cfg)
	if err != nil {
		return nil, fmt.Errorf("generate stage: %w", err)
	}
	chk, err := newCheckStage(cfg)
	if err != nil {
		return nil, fmt.Errorf("check stage: %w", err)
	}
	exe, err := newExecuteStage(cfg)
	if err != nil {
		return nil, fmt.Errorf("execute stage: %w", err)
	}

	return &Machine{
		log: cfg.Logger,
		gen: gen,
		chk: chk,
		exe: exe,
	}, nil
}

// Run drives a fresh buffer seeded with the question to the terminal state
// and returns the final message content. Each transition appends exactly
// one message to the buffer.
func (m *Machine) Run(ctx context.Context, question string) (*Result, error) {
	buf := NewBuffer(question)
	state := StageGenerate

	for state != StageTerminal {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		start := time.Now()
		var res StageResult
		var err error
		switch state {
		case StageGenerate:
			res, err = m.gen.run(ctx, buf)
		case StageCheck:
			res, err = m.chk.run(ctx, buf)
		case StageExecute:
			res, err = m.exe.run(ctx, buf)
		default:
			return nil, fmt.Errorf("unknown stage %q", state)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", state, err)
		}

		buf.Append(res.Message)
		if m.log != nil {
			m.log.Info("pipeline: stage complete",
				"stage", state,
				"next", res.Next,
				"duration", time.Since(start),
				"buffer_len", buf.Len())
		}
		state = res.Next
	}

	return &Result{
		Answer:     buf.Last().Content,
		Transcript: buf.Messages(),
	}, nil
}
