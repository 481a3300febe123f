package replay

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/gatedagent/internal/trace"
)

// Stats holds aggregate figures for one run.
type Stats struct {
	Steps         int
	ToolCalls     map[string]int
	EvidenceItems int
	Sources       int // distinct non-empty sources
	MaxScore      float64
	ParseFailures int // steps that fell back to UnknownTool
	SearchMisses  int // searches that returned nothing
}

// ComputeStats aggregates a trace.
func ComputeStats(t *trace.Trace) *Stats {
	stats := &Stats{ToolCalls: make(map[string]int)}
	sources := make(map[string]struct{})

	for _, s := range t.Steps {
		stats.Steps++
		stats.ToolCalls[s.Action.ToolName]++
		if s.Action.ToolName == "UnknownTool" {
			stats.ParseFailures++
		}
		if s.Action.ToolName == "Search" && len(s.Evidence) == 0 {
			stats.SearchMisses++
		}
		for _, e := range s.Evidence {
			stats.EvidenceItems++
			if e.Source != "" {
				sources[e.Source] = struct{}{}
			}
			if e.Score > stats.MaxScore {
				stats.MaxScore = e.Score
			}
		}
	}
	stats.Sources = len(sources)
	return stats
}

// PrintStats writes the statistics block.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("STATISTICS"))
	fmt.Fprintf(w, "  %s %d\n", label.Render("Steps:         "), stats.Steps)

	tools := make([]string, 0, len(stats.ToolCalls))
	for name := range stats.ToolCalls {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	for _, name := range tools {
		fmt.Fprintf(w, "    %-14s %d\n", name, stats.ToolCalls[name])
	}

	fmt.Fprintf(w, "  %s %d\n", label.Render("Evidence items:"), stats.EvidenceItems)
	fmt.Fprintf(w, "  %s %d\n", label.Render("Sources:       "), stats.Sources)
	if stats.EvidenceItems > 0 {
		fmt.Fprintf(w, "  %s %.2f\n", label.Render("Max score:     "), stats.MaxScore)
	}
	if stats.ParseFailures > 0 {
		fmt.Fprintf(w, "  %s %d\n", label.Render("Parse failures:"), stats.ParseFailures)
	}
	if stats.SearchMisses > 0 {
		fmt.Fprintf(w, "  %s %d\n", label.Render("Empty searches:"), stats.SearchMisses)
	}
}

// PrintList writes one line per stored run.
func PrintList(w io.Writer, runs []trace.Summary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no runs recorded"))
		return
	}
	for _, s := range runs {
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			dimStyle.Render(s.StartedAt.Format("2006-01-02 15:04:05")),
			valueStyle.Render(s.RunID),
			statusStyle(s.Status).Render(fmt.Sprintf("%-8s", s.Status)),
			dimStyle.Render(fmt.Sprintf("%d steps", s.Steps)),
			s.Query)
	}
}
