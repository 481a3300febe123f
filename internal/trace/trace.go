// Package trace records and persists the step-by-step history of agent runs.
package trace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

// ErrNotFound is returned when no trace exists for a run ID.
var ErrNotFound = errors.New("trace not found")

// Action is the persisted shape of a tool call. Params is the query or
// expression string for known tools and the raw argument object otherwise.
type Action struct {
	ToolName string      `json:"tool_name"`
	Params   interface{} `json:"params"`
}

// Step is one thought, action, observation cycle. Evidence holds only the
// items produced by this step.
type Step struct {
	StepID      int                  `json:"step_id"`
	Thought     string               `json:"thought"`
	Action      Action               `json:"action"`
	Observation string               `json:"observation"`
	Evidence    []retrieval.Evidence `json:"evidence"`
}

// Trace is the persisted document for one run.
type Trace struct {
	RunID     string    `json:"run_id,omitempty"`
	Query     string    `json:"user_query,omitempty"`
	Status    string    `json:"status,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Steps     []Step    `json:"steps"`
	Final     *string   `json:"final"`
}

// Summary describes a stored run.
type Summary struct {
	RunID     string    `json:"run_id"`
	Query     string    `json:"user_query"`
	Status    string    `json:"status"`
	Steps     int       `json:"steps"`
	StartedAt time.Time `json:"started_at"`
}

// Store persists traces. Save is called after every step with the full
// trace so far.
type Store interface {
	Save(ctx context.Context, t *Trace) error
	Load(ctx context.Context, runID string) (*Trace, error)
	List(ctx context.Context) ([]Summary, error)
}

// Recorder accumulates one run's trace and persists it after each change.
// Persistence failures are logged, never returned.
type Recorder struct {
	mu     sync.Mutex
	store  Store
	trace  Trace
	logger *logging.Logger
}

// NewRecorder starts a trace for runID. A nil store keeps the trace in
// memory only.
func NewRecorder(store Store, runID, query string, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{
		store: store,
		trace: Trace{
			RunID:     runID,
			Query:     query,
			Status:    "running",
			StartedAt: time.Now(),
			Steps:     []Step{},
		},
		logger: logger.WithComponent("trace").WithRunID(runID),
	}
}

// Step appends s and persists the trace.
func (r *Recorder) Step(ctx context.Context, s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Evidence == nil {
		s.Evidence = []retrieval.Evidence{}
	}
	r.trace.Steps = append(r.trace.Steps, s)
	r.persist(ctx)
}

// Finish records the final answer and terminal status.
func (r *Recorder) Finish(ctx context.Context, status, final string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.Status = status
	r.trace.Final = &final
	r.persist(ctx)
}

// Trace returns a copy of the trace so far.
func (r *Recorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace.clone()
}

func (r *Recorder) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	t := r.trace.clone()
	if err := r.store.Save(ctx, &t); err != nil {
		r.logger.Error("failed to persist trace", map[string]interface{}{
			"steps": len(t.Steps),
			"error": err.Error(),
		})
	}
}

func (t Trace) clone() Trace {
	out := t
	out.Steps = append([]Step(nil), t.Steps...)
	if out.Steps == nil {
		out.Steps = []Step{}
	}
	if t.Final != nil {
		f := *t.Final
		out.Final = &f
	}
	return out
}
