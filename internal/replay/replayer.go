package replay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vinayprograms/gatedagent/internal/trace"
)

// Replayer formats run traces as a step timeline.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=evidence, 2=evidence with full content
	maxContentSize int
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithMaxContentSize truncates thoughts, observations and evidence longer
// than size bytes. Zero disables truncation.
func WithMaxContentSize(size int) Option {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a Replayer writing to output.
func New(output io.Writer, verbosity int, opts ...Option) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 16 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a trace file.
func (r *Replayer) ReplayFile(path string) error {
	t, err := r.load(path)
	if err != nil {
		return err
	}
	return r.Replay(t)
}

// ReplayRun loads a run from store and replays it.
func (r *Replayer) ReplayRun(ctx context.Context, store trace.Store, runID string) error {
	t, err := store.Load(ctx, runID)
	if err != nil {
		return err
	}
	return r.Replay(r.truncate(t))
}

// Render returns the replay of t as a string.
func (r *Replayer) Render(t *trace.Trace) string {
	var buf strings.Builder
	old := r.output
	r.output = &buf
	_ = r.Replay(t)
	r.output = old
	return buf.String()
}

// ReplayFileInteractive replays a trace file in the pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	t, err := r.load(path)
	if err != nil {
		return err
	}
	return NewPager(fmt.Sprintf("Run: %s", t.RunID)).Run(r.Render(t))
}

// ReplayFileLive replays a trace file in the pager and re-renders it
// whenever the file is rewritten.
func (r *Replayer) ReplayFileLive(path string) error {
	t, err := r.load(path)
	if err != nil {
		return err
	}
	render := func() (string, error) {
		t, err := r.load(path)
		if err != nil {
			return "", err
		}
		return r.Render(t), nil
	}
	return NewPager(fmt.Sprintf("Run: %s (LIVE)", t.RunID)).RunLive(path, render)
}

// Replay writes the header, step timeline and summary of t.
func (r *Replayer) Replay(t *trace.Trace) error {
	r.printHeader(t)
	r.printTimeline(t)
	r.printSummary(t)
	return nil
}

func (r *Replayer) load(path string) (*trace.Trace, error) {
	t, err := trace.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	return r.truncate(t), nil
}

func (r *Replayer) truncate(t *trace.Trace) *trace.Trace {
	if r.maxContentSize <= 0 {
		return t
	}
	for i := range t.Steps {
		s := &t.Steps[i]
		s.Thought = r.clip(s.Thought)
		s.Observation = r.clip(s.Observation)
		for j := range s.Evidence {
			s.Evidence[j].Content = r.clip(s.Evidence[j].Content)
		}
	}
	return t
}

func (r *Replayer) clip(s string) string {
	if len(s) <= r.maxContentSize {
		return s
	}
	return s[:r.maxContentSize] + fmt.Sprintf("\n... [truncated, %d bytes total]", len(s))
}

func (r *Replayer) printHeader(t *trace.Trace) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(t.RunID))
	fmt.Fprintln(r.output, divider)
	if t.Query != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Query:  "), valueStyle.Render(t.Query))
	}
	if t.Status != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), statusStyle(t.Status).Render(t.Status))
	}
	if !t.StartedAt.IsZero() {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Started:"), valueStyle.Render(t.StartedAt.Format(time.RFC3339)))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(t *trace.Trace) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("STEPS"), dimStyle.Render(fmt.Sprintf("(%d)", len(t.Steps))))
	fmt.Fprintln(r.output, divider)
	for i := range t.Steps {
		r.formatStep(&t.Steps[i])
	}
}

func (r *Replayer) printSummary(t *trace.Trace) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch t.Status {
	case "success":
		fmt.Fprintln(r.output, successStyle.Render("SUCCESS"))
	case "failed":
		fmt.Fprintln(r.output, errorStyle.Render("FAILED"))
	case "blocked":
		fmt.Fprintln(r.output, safetyStyle.Render("BLOCKED"))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}
	if t.Final != nil {
		fmt.Fprintln(r.output)
		fmt.Fprintln(r.output, blockHeaderStyle.Render("── FINAL ──"))
		fmt.Fprintln(r.output, *t.Final)
	}

	PrintStats(r.output, ComputeStats(t))
}
