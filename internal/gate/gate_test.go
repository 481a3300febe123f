package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

func ev(source string, score float64) retrieval.Evidence {
	return retrieval.Evidence{Content: "c", Source: source, Score: score}
}

func TestEvaluate(t *testing.T) {
	search := []string{"Search", "Search"}

	tests := []struct {
		name     string
		evidence []retrieval.Evidence
		tools    []string
		pass     bool
		reason   string
	}{
		{
			name:   "calculator only passes without evidence",
			tools:  []string{"Calculator", "Calculator"},
			pass:   true,
			reason: ReasonCalculatorOnly,
		},
		{
			name:   "no tools used passes",
			tools:  nil,
			pass:   true,
			reason: ReasonCalculatorOnly,
		},
		{
			name:     "two strong sources",
			evidence: []retrieval.Evidence{ev("a.com", 0.85), ev("b.com", 0.75)},
			tools:    search,
			pass:     true,
			reason:   ReasonSufficient,
		},
		{
			name:     "single distinct source",
			evidence: []retrieval.Evidence{ev("a.com", 0.9), ev("a.com", 0.88)},
			tools:    search,
			reason:   ReasonFewSources,
		},
		{
			name:     "many weak sources",
			evidence: []retrieval.Evidence{ev("a.com", 0.7), ev("b.com", 0.65), ev("c.com", 0.5)},
			tools:    search,
			reason:   ReasonNoQualified,
		},
		{
			name:     "items without source ignored",
			evidence: []retrieval.Evidence{ev("", 0.99), ev("a.com", 0.9)},
			tools:    search,
			reason:   ReasonFewSources,
		},
		{
			name:     "diverse but not relevant enough",
			evidence: []retrieval.Evidence{ev("a.com", 0.75), ev("b.com", 0.79)},
			tools:    search,
			reason:   ReasonLowRelevance,
		},
		{
			name:     "peak exactly at threshold passes",
			evidence: []retrieval.Evidence{ev("a.com", 0.8), ev("b.com", 0.71)},
			tools:    search,
			pass:     true,
			reason:   ReasonSufficient,
		},
		{
			name:     "mixed tools use evidence checks",
			evidence: []retrieval.Evidence{ev("a.com", 0.9)},
			tools:    []string{"Calculator", "Search"},
			reason:   ReasonFewSources,
		},
		{
			name:   "unknown tool with no evidence",
			tools:  []string{"Calculator", "UnknownTool"},
			reason: ReasonNoQualified,
		},
		{
			name:     "local hit plus web source",
			evidence: []retrieval.Evidence{ev(retrieval.LocalSource, 1.0), ev("b.com", 0.72)},
			tools:    search,
			pass:     true,
			reason:   ReasonSufficient,
		},
	}

	g := New(DefaultMinSources, DefaultRelevanceThreshold)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Evaluate(tt.evidence, tt.tools)
			assert.Equal(t, tt.pass, v.Pass, v.String())
			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.pass, g.Sufficient(tt.evidence, tt.tools))
		})
	}
}

func TestCalculatorOnlyIgnoresThresholds(t *testing.T) {
	for _, g := range []*Gate{
		New(0, 0),
		New(2, 0.8),
		New(100, 1.0),
		{MinSources: 5, RelevanceThreshold: 0.99, ItemFloor: 0.99},
	} {
		assert.True(t, g.Sufficient(nil, []string{"Calculator"}))
		assert.True(t, g.Sufficient([]retrieval.Evidence{ev("x", 0.1)}, []string{"Calculator", "Calculator", "Calculator"}))
	}
}

func TestVerdictFigures(t *testing.T) {
	g := New(3, 0.8)
	v := g.Evaluate([]retrieval.Evidence{ev("a", 0.9), ev("b", 0.95), ev("b", 0.72)}, []string{"Search"})
	assert.False(t, v.Pass)
	assert.Equal(t, 2, v.Sources)
	assert.InDelta(t, 0.95, v.MaxScore, 1e-9)
	assert.Contains(t, v.String(), "insufficient_sources")
}
