// Package service exposes the external-facing query contract: one
// natural-language question in, one natural-language answer out.
package service

import (
	"context"
	"log/slog"

	"github.com/askdb/askdb/pkg/pipeline"
)

// Service drives the pipeline machine for one question at a time. Each call
// owns a fresh conversation buffer; concurrent calls share nothing mutable.
type Service struct {
	log     *slog.Logger
	machine *pipeline.Machine
}

// New creates a query service around a pipeline machine.
func New(log *slog.Logger, machine *pipeline.Machine) *Service {
	return &Service{
		log:     log,
		machine: machine,
	}
}

// Handle answers one natural-language question. Only the final message
// content is returned; intermediate SQL and origin tags stay internal.
func (s *Service) Handle(ctx context.Context, question string) (string, error) {
	result, err := s.machine.Run(ctx, question)
	if err != nil {
		return "", err
	}
	if s.log != nil {
		s.log.Info("service: question answered",
			"transitions", len(result.Transcript)-1,
			"answer_len", len(result.Answer))
	}
	return result.Answer, nil
}
