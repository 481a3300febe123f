package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/gatedagent/internal/agent"
	"github.com/vinayprograms/gatedagent/internal/trace"
)

var (
	stepStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Run answers one query.
func (c *RunCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.close()

	acfg, err := agent.ConfigFrom(a.cfg.Agent)
	if err != nil {
		return err
	}
	c.apply(&acfg)

	if err := a.buildIndex(ctx, false); err != nil {
		return err
	}

	var obs agent.Observer = &printer{w: os.Stderr, quiet: c.Quiet}
	if c.Stream && !c.JSON {
		obs = &streamPrinter{printer: printer{w: os.Stderr, quiet: c.Quiet}, out: os.Stdout}
	}
	ctrl, err := a.newController(ctx, acfg, obs)
	if err != nil {
		return err
	}

	res := ctrl.Run(ctx, strings.Join(c.Query, " "), c.RunID)
	return writeResult(os.Stdout, res, c.JSON, c.Stream)
}

// apply layers command-line overrides onto the loop settings.
func (c *RunCmd) apply(cfg *agent.Config) {
	if c.MaxSteps > 0 {
		cfg.MaxSteps = c.MaxSteps
	}
	if c.NoGate {
		cfg.UseEvidenceGate = false
	}
	if c.NoSearch {
		cfg.EnableSearch = false
	}
	if c.NoSafety {
		cfg.EnableSafety = false
	}
}

// writeResult prints the answer, or the whole result in JSON mode. A
// streamed successful answer has already been printed.
func writeResult(w io.Writer, res agent.Result, asJSON, streamed bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if streamed && res.Status == agent.StatusSuccess {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, res.Answer)
	return err
}

// printer reports steps on stderr as they complete.
type printer struct {
	w     io.Writer
	quiet bool
}

func (p *printer) OnStep(s trace.Step) {
	if p.quiet {
		return
	}
	line := fmt.Sprintf("[%d] %s", s.StepID, s.Action.ToolName)
	if params, ok := s.Action.Params.(string); ok && params != "" {
		line += " " + fmt.Sprintf("%q", params)
	}
	fmt.Fprintln(p.w, stepStyle.Render(line))
	if n := len(s.Evidence); n > 0 {
		fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf("    %d evidence item(s)", n)))
	} else {
		fmt.Fprintln(p.w, dimStyle.Render("    "+firstLine(s.Observation)))
	}
}

func (p *printer) OnComplete(res agent.Result) {
	if p.quiet {
		return
	}
	status := res.Status
	if res.Status != agent.StatusSuccess {
		status = failStyle.Render(status)
	}
	fmt.Fprintf(p.w, "%s %s %s\n", dimStyle.Render("run"), res.ID, status)
}

// streamPrinter additionally writes synthesis tokens to out.
type streamPrinter struct {
	printer
	out io.Writer
}

func (p *streamPrinter) OnToken(chunk string) {
	fmt.Fprint(p.out, chunk)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
