// Package agent runs the gated thought, action, observation loop.
package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/gatedagent/internal/action"
	"github.com/vinayprograms/gatedagent/internal/config"
	"github.com/vinayprograms/gatedagent/internal/gate"
	"github.com/vinayprograms/gatedagent/internal/llm"
	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/metrics"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
	"github.com/vinayprograms/gatedagent/internal/safety"
	"github.com/vinayprograms/gatedagent/internal/tools"
	"github.com/vinayprograms/gatedagent/internal/trace"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

// Searcher retrieves scored evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (retrieval.Result, error)
}

// Calculator evaluates arithmetic expressions.
type Calculator interface {
	Run(expression string) (tools.CalcResult, bool)
}

// Config holds the loop settings.
type Config struct {
	MaxSteps             int
	MinSteps             int // advisory
	UseEvidenceGate      bool
	EnableSearch         bool
	EnableSafety         bool
	Temperature          float64
	SynthesisTemperature float64
	MaxParseRetries      int
	SystemPrompt         string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:             6,
		MinSteps:             3,
		UseEvidenceGate:      true,
		EnableSearch:         true,
		EnableSafety:         true,
		Temperature:          0.1,
		SynthesisTemperature: 0.2,
		MaxParseRetries:      2,
		SystemPrompt:         DefaultSystemPrompt(),
	}
}

// ConfigFrom converts the [agent] table. A configured system prompt file
// replaces the built-in prompt.
func ConfigFrom(c config.AgentConfig) (Config, error) {
	cfg := Config{
		MaxSteps:             c.MaxSteps,
		MinSteps:             c.MinSteps,
		UseEvidenceGate:      c.UseEvidenceGate,
		EnableSearch:         c.EnableSearch,
		EnableSafety:         c.EnableSafety,
		Temperature:          c.Temperature,
		SynthesisTemperature: c.SynthesisTemperature,
		MaxParseRetries:      c.MaxParseRetries,
		SystemPrompt:         DefaultSystemPrompt(),
	}
	if c.SystemPromptFile != "" {
		data, err := os.ReadFile(c.SystemPromptFile)
		if err != nil {
			return cfg, fmt.Errorf("read system prompt: %w", err)
		}
		cfg.SystemPrompt = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// Options wires the controller's collaborators. Model is required.
type Options struct {
	Model        llm.Model
	Search       Searcher    // nil makes every search return no results
	Calculator   Calculator  // nil uses an uncached calculator
	Gate         *gate.Gate  // nil uses the default thresholds
	Safety       safety.Filter
	Store        trace.Store // nil keeps traces in memory
	ToolRecorder *metrics.ToolRecorder
	Observer     Observer
	Logger       *logging.Logger
}

// Result is the terminal outcome of one run.
type Result struct {
	ID         string        `json:"id"`
	Query      string        `json:"user_query"`
	Status     string        `json:"status"`
	Answer     string        `json:"answer"`
	Latency    time.Duration `json:"-"`
	LatencySec float64       `json:"latency_sec"`
	Trace      trace.Trace   `json:"trace"`
}

// Controller runs the agent loop. It is safe for concurrent runs; all
// per-run state lives in a runContext.
type Controller struct {
	cfg      Config
	model    llm.Model
	search   Searcher
	calc     Calculator
	gate     *gate.Gate
	safety   safety.Filter
	store    trace.Store
	recorder *metrics.ToolRecorder
	observer Observer
	logger   *logging.Logger
}

// New creates a controller.
func New(cfg Config, opts Options) (*Controller, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("agent: model is required")
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("agent: max steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.MaxParseRetries < 0 {
		cfg.MaxParseRetries = 0
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt()
	}
	c := &Controller{
		cfg:      cfg,
		model:    opts.Model,
		search:   opts.Search,
		calc:     opts.Calculator,
		gate:     opts.Gate,
		safety:   opts.Safety,
		store:    opts.Store,
		recorder: opts.ToolRecorder,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if c.calc == nil {
		c.calc = tools.NewCalculator(nil)
	}
	if c.gate == nil {
		c.gate = gate.New(gate.DefaultMinSources, gate.DefaultRelevanceThreshold)
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.WithComponent("agent")
	return c, nil
}

// runContext is the mutable state of one run.
type runContext struct {
	systemPrompt string
	query        string
	observations []string
	evidence     []retrieval.Evidence
	usedTools    []string
	parseErrors  []string
}

// Run answers query. It always returns a Result; failures become a failed
// status with an explanatory answer. An empty runID gets a generated one.
func (c *Controller) Run(ctx context.Context, query, runID string) Result {
	if runID == "" {
		runID = uuid.New().String()
	}
	start := time.Now()
	logger := c.logger.WithRunID(runID)
	logger.RunStart(query)

	ctx, span := c.startRunSpan(ctx, runID)
	rec := trace.NewRecorder(c.store, runID, query, logger)

	status, answer, steps := c.run(ctx, rec, logger, query)
	rec.Finish(ctx, status, answer)

	res := Result{
		ID:         runID,
		Query:      query,
		Status:     status,
		Answer:     answer,
		Latency:    time.Since(start),
		LatencySec: time.Since(start).Seconds(),
		Trace:      rec.Trace(),
	}
	c.endRunSpan(span, status, steps)
	metrics.RunsTotal.WithLabelValues(status).Inc()
	logger.RunComplete(status, steps, res.Latency)
	c.observer.OnComplete(res)
	return res
}

func (c *Controller) run(ctx context.Context, rec *trace.Recorder, logger *logging.Logger, query string) (status, answer string, steps int) {
	if c.cfg.EnableSafety && c.safety != nil {
		if block, msg := c.safety.Classify(query); block {
			c.recordBlock(ctx, rec, logger, query)
			return StatusBlocked, msg, 1
		}
	}

	rc := &runContext{systemPrompt: c.cfg.SystemPrompt, query: query}
	for stepID := 1; stepID <= c.cfg.MaxSteps; stepID++ {
		if err := ctx.Err(); err != nil {
			return StatusFailed, fmt.Sprintf("run cancelled: %v", err), stepID - 1
		}
		c.step(ctx, rec, logger, rc, stepID)
	}

	if len(rc.usedTools) < c.cfg.MinSteps {
		logger.Warn("fewer tool calls than min_steps", map[string]interface{}{
			"steps":     len(rc.usedTools),
			"min_steps": c.cfg.MinSteps,
		})
	}

	steps = c.cfg.MaxSteps
	if c.cfg.UseEvidenceGate {
		v := c.gate.Evaluate(rc.evidence, rc.usedTools)
		verdict := "fail"
		if v.Pass {
			verdict = "pass"
		}
		metrics.GateVerdictsTotal.WithLabelValues(verdict, v.Reason).Inc()
		logger.Info("evidence gate", map[string]interface{}{
			"pass":      v.Pass,
			"reason":    v.Reason,
			"sources":   v.Sources,
			"max_score": v.MaxScore,
		})
		if !v.Pass {
			return StatusFailed, DeclineMessage, steps
		}
	}

	answer, err := c.synthesize(ctx, rc)
	if err != nil {
		logger.Error("synthesis failed", map[string]interface{}{"error": err.Error()})
		return StatusFailed, fmt.Sprintf("failed to synthesize answer: %v", err), steps
	}
	return StatusSuccess, answer, steps
}

func (c *Controller) recordBlock(ctx context.Context, rec *trace.Recorder, logger *logging.Logger, query string) {
	category := "keyword"
	if m, ok := c.safety.(interface {
		Match(string) (safety.Category, bool)
	}); ok {
		if cat, found := m.Match(query); found {
			category = cat.Name
		}
	}
	metrics.SafetyBlocksTotal.WithLabelValues(category).Inc()
	logger.SecurityWarning("request blocked by safety filter", map[string]interface{}{"category": category})

	s := trace.Step{
		StepID:      1,
		Thought:     "Safety module blocked the request.",
		Action:      trace.Action{ToolName: action.ToolSafety, Params: ""},
		Observation: "Blocked by safety module.",
		Evidence:    []retrieval.Evidence{},
	}
	rec.Step(ctx, s)
	c.observer.OnStep(s)
}

// step runs one thought, action, observation cycle and persists it.
func (c *Controller) step(ctx context.Context, rec *trace.Recorder, logger *logging.Logger, rc *runContext, stepID int) {
	ctx, span := c.startStepSpan(ctx, stepID)
	metrics.StepsTotal.Inc()

	thought, act, diag := c.decide(ctx, rc)

	var observation string
	var evidence []retrieval.Evidence
	if diag != "" {
		observation = fmt.Sprintf("Could not parse a tool call after %d attempts: %s", c.cfg.MaxParseRetries+1, diag)
	} else {
		observation, evidence = c.dispatch(ctx, logger, act)
	}

	rc.usedTools = append(rc.usedTools, act.Tool)
	rc.observations = append(rc.observations, observation)
	rc.evidence = append(rc.evidence, evidence...)

	if evidence == nil {
		evidence = []retrieval.Evidence{}
	}
	s := trace.Step{
		StepID:      stepID,
		Thought:     thought,
		Action:      trace.Action{ToolName: act.Tool, Params: act.Params()},
		Observation: observation,
		Evidence:    evidence,
	}
	rec.Step(ctx, s)
	c.observer.OnStep(s)
	c.endStepSpan(span, act.Tool, len(evidence))
}

// decide asks the model for an action, re-prompting with the failure
// diagnostic up to MaxParseRetries times. On exhaustion it returns the
// Unknown action and the last diagnostic.
func (c *Controller) decide(ctx context.Context, rc *runContext) (string, action.Action, string) {
	base := StepPrompt(rc.systemPrompt, rc.query, rc.observations, rc.usedTools)
	prompt := base
	var thought, diag string

	for attempt := 1; attempt <= c.cfg.MaxParseRetries+1; attempt++ {
		out, err := c.model.Generate(ctx, prompt, c.cfg.Temperature)
		if err != nil {
			thought = ""
			diag = fmt.Sprintf("model error: %v", err)
			metrics.ParseFailuresTotal.WithLabelValues("model_error").Inc()
			rc.parseErrors = append(rc.parseErrors, diag)
			if ctx.Err() != nil {
				break
			}
			prompt = base + RetryFeedback(attempt, diag)
			continue
		}

		thought = strings.TrimSpace(out)
		act, perr := action.Parse(thought)
		if perr == nil {
			return thought, act, ""
		}
		diag = perr.Error()
		metrics.ParseFailuresTotal.WithLabelValues(string(perr.Reason)).Inc()
		rc.parseErrors = append(rc.parseErrors, diag)
		c.logger.Debug("parse failed", map[string]interface{}{
			"attempt": attempt,
			"reason":  string(perr.Reason),
		})
		prompt = base + RetryFeedback(attempt, diag)
	}

	metrics.ParseExhaustedTotal.Inc()
	c.logger.Warn("no valid tool call", map[string]interface{}{"error": diag})
	return thought, action.Unknown(), diag
}

// synthesize produces the final answer from the evidence.
func (c *Controller) synthesize(ctx context.Context, rc *runContext) (string, error) {
	prompt := SynthesisPrompt(rc.query, rc.evidence)
	temp := c.cfg.SynthesisTemperature

	if tw, ok := c.observer.(TokenObserver); ok {
		if s, ok := c.model.(llm.Streamer); ok {
			out, err := s.Stream(ctx, prompt, temp, tw.OnToken)
			if err != nil {
				return "", err
			}
			return FormatOutput(out), nil
		}
	}
	out, err := c.model.Generate(ctx, prompt, temp)
	if err != nil {
		return "", err
	}
	return FormatOutput(out), nil
}
