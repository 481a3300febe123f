package replay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/gatedagent/internal/trace"
)

const indent = "     │   "

// formatStep prints one step: the tool call line, then the thought and
// observation, then evidence when verbosity allows.
func (r *Replayer) formatStep(s *trace.Step) {
	seq := seqStyle.Render(fmt.Sprintf("%d", s.StepID))
	fmt.Fprintf(r.output, "%s │ %s %s\n", seq,
		toolStyle(s.Action.ToolName).Render(s.Action.ToolName),
		valueStyle.Render(formatParams(s.Action.Params)))

	if s.Thought != "" && r.verbosity >= 1 {
		fmt.Fprintf(r.output, "%s%s\n", indent, blockHeaderStyle.Render("── THOUGHT ──"))
		r.printContent(s.Thought, thoughtStyle.Render)
	}

	obs := s.Observation
	if r.verbosity == 0 {
		obs = firstLines(obs, 3)
	}
	fmt.Fprintf(r.output, "%s%s\n", indent, blockHeaderStyle.Render("── OBSERVATION ──"))
	r.printContent(obs, func(v ...string) string { return strings.Join(v, " ") })

	if len(s.Evidence) == 0 {
		return
	}
	fmt.Fprintf(r.output, "%s%s %s\n", indent, blockHeaderStyle.Render("── EVIDENCE ──"),
		dimStyle.Render(fmt.Sprintf("(%d)", len(s.Evidence))))
	for i, e := range s.Evidence {
		fmt.Fprintf(r.output, "%s%s %s %s\n", indent,
			labelStyle.Render(fmt.Sprintf("[%d]", i+1)),
			scoreStyle(e.Score).Render(fmt.Sprintf("%.2f", e.Score)),
			dimStyle.Render(e.Source))
		if r.verbosity >= 2 {
			r.printContent(e.Content, dimStyle.Render)
		}
	}
}

func (r *Replayer) printContent(content string, render func(...string) string) {
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "%s%s\n", indent, render(line))
	}
}

// formatParams renders a string param quoted and anything else as compact
// JSON.
func formatParams(p interface{}) string {
	switch v := p.(type) {
	case nil:
		return ""
	case string:
		if v == "" {
			return ""
		}
		return fmt.Sprintf("%q", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}

func scoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.8:
		return successStyle
	case score >= 0.7:
		return warnStyle
	default:
		return dimStyle
	}
}
