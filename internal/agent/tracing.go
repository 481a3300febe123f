// Tracing instrumentation for the controller.
package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/gatedagent/internal/telemetry"
)

// startRunSpan starts a span for one run.
func (c *Controller) startRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	ctx, span := telemetry.Tracer().Start(ctx, "agent.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.max_steps", c.cfg.MaxSteps),
		attribute.Bool("run.evidence_gate", c.cfg.UseEvidenceGate),
	)
	return ctx, span
}

// endRunSpan ends the run span with its outcome.
func (c *Controller) endRunSpan(span trace.Span, status string, steps int) {
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Int("run.steps", steps),
	)
	span.End()
}

// startStepSpan starts a span for one loop step.
func (c *Controller) startStepSpan(ctx context.Context, stepID int) (context.Context, trace.Span) {
	ctx, span := telemetry.Tracer().Start(ctx, "agent.step")
	span.SetAttributes(attribute.Int("step.id", stepID))
	return ctx, span
}

// endStepSpan ends the step span.
func (c *Controller) endStepSpan(span trace.Span, tool string, evidence int) {
	span.SetAttributes(
		attribute.String("step.tool", tool),
		attribute.Int("step.evidence", evidence),
	)
	span.End()
}
