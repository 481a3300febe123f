// Package server exposes the agent over NATS request/reply and HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/vinayprograms/gatedagent/internal/agent"
	"github.com/vinayprograms/gatedagent/internal/logging"
)

// ErrBusy is returned when every run slot is taken. Requests are rejected,
// never queued.
var ErrBusy = errors.New("server busy")

// Runner executes one agent run. *agent.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context, query, runID string) agent.Result
}

// RunRequest is the body of a run request on either transport.
type RunRequest struct {
	Query string `json:"query"`
	RunID string `json:"run_id,omitempty"`
}

// ErrorResponse is returned for requests that never reached the agent.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Service bounds concurrent runs shared by all transports.
type Service struct {
	runner Runner
	slots  *semaphore.Weighted
	logger *logging.Logger
}

// NewService creates a service allowing maxRuns concurrent runs. A
// non-positive maxRuns means one.
func NewService(runner Runner, maxRuns int, logger *logging.Logger) *Service {
	if maxRuns <= 0 {
		maxRuns = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		runner: runner,
		slots:  semaphore.NewWeighted(int64(maxRuns)),
		logger: logger.WithComponent("server"),
	}
}

// Validate checks a request before it takes a run slot.
func (r RunRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if strings.ContainsAny(r.RunID, `/\`) {
		return fmt.Errorf("run_id must not contain path separators")
	}
	return nil
}

// Run executes req if a slot is free and fails with ErrBusy otherwise.
func (s *Service) Run(ctx context.Context, req RunRequest) (agent.Result, error) {
	if err := req.Validate(); err != nil {
		return agent.Result{}, err
	}
	if !s.slots.TryAcquire(1) {
		s.logger.Warn("run rejected", logging.Fields{"reason": "all run slots in use"})
		return agent.Result{}, ErrBusy
	}
	defer s.slots.Release(1)
	return s.runner.Run(ctx, req.Query, req.RunID), nil
}

// handle decodes a raw request and returns the encoded reply.
func (s *Service) handle(ctx context.Context, data []byte) []byte {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeError(fmt.Errorf("invalid request: %w", err))
	}
	res, err := s.Run(ctx, req)
	if err != nil {
		return encodeError(err)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return encodeError(fmt.Errorf("encode result: %w", err))
	}
	return out
}

func encodeError(err error) []byte {
	out, _ := json.Marshal(ErrorResponse{Error: err.Error()})
	return out
}
