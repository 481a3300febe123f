// Package gate decides whether the evidence gathered during a run is
// sufficient to justify a final answer.
package gate

import (
	"fmt"

	"github.com/vinayprograms/gatedagent/internal/action"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

// Defaults for the gate thresholds.
const (
	DefaultMinSources         = 2
	DefaultRelevanceThreshold = 0.8
	DefaultItemFloor          = 0.7
)

// Verdict reasons.
const (
	ReasonCalculatorOnly = "calculator_only"
	ReasonNoQualified    = "no_qualified_evidence"
	ReasonFewSources     = "insufficient_sources"
	ReasonLowRelevance   = "low_relevance"
	ReasonSufficient     = "sufficient"
)

// Gate holds the sufficiency thresholds.
type Gate struct {
	MinSources         int
	RelevanceThreshold float64
	// ItemFloor is the per-item score an evidence item must exceed to count.
	ItemFloor float64
}

// Verdict is the gate decision with the figures that produced it.
type Verdict struct {
	Pass     bool
	Reason   string
	Sources  int
	MaxScore float64
}

func (v Verdict) String() string {
	return fmt.Sprintf("pass=%t reason=%s sources=%d max_score=%.2f", v.Pass, v.Reason, v.Sources, v.MaxScore)
}

// New creates a gate with the default item floor.
func New(minSources int, relevanceThreshold float64) *Gate {
	return &Gate{
		MinSources:         minSources,
		RelevanceThreshold: relevanceThreshold,
		ItemFloor:          DefaultItemFloor,
	}
}

// Sufficient reports whether the evidence passes the gate.
func (g *Gate) Sufficient(evidence []retrieval.Evidence, usedTools []string) bool {
	return g.Evaluate(evidence, usedTools).Pass
}

// Evaluate applies the policy: a run that only used the Calculator passes
// unconditionally; otherwise evidence above the item floor with a source must
// span at least MinSources distinct sources and peak at or above
// RelevanceThreshold.
func (g *Gate) Evaluate(evidence []retrieval.Evidence, usedTools []string) Verdict {
	if calculatorOnly(usedTools) {
		return Verdict{Pass: true, Reason: ReasonCalculatorOnly}
	}

	sources := make(map[string]struct{})
	maxScore := 0.0
	qualified := 0
	for _, e := range evidence {
		if e.Score <= g.ItemFloor || e.Source == "" {
			continue
		}
		qualified++
		sources[e.Source] = struct{}{}
		if e.Score > maxScore {
			maxScore = e.Score
		}
	}

	v := Verdict{Sources: len(sources), MaxScore: maxScore}
	switch {
	case qualified == 0:
		v.Reason = ReasonNoQualified
	case len(sources) < g.MinSources:
		v.Reason = ReasonFewSources
	case maxScore < g.RelevanceThreshold:
		v.Reason = ReasonLowRelevance
	default:
		v.Pass = true
		v.Reason = ReasonSufficient
	}
	return v
}

// calculatorOnly reports whether every entry is the Calculator. An empty
// list qualifies; the loop records a tool for every step, so it only arises
// for direct callers.
func calculatorOnly(tools []string) bool {
	for _, t := range tools {
		if t != action.ToolCalculator {
			return false
		}
	}
	return true
}
