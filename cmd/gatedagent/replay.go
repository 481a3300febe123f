package main

import (
	"context"
	"os"

	"github.com/vinayprograms/gatedagent/internal/replay"
)

// Run replays a trace file or stored run, or lists runs when no target is
// given.
func (c *ReplayCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, logger: newLogger(cfg, g.LogLevel)}
	defer a.close()

	r := replay.New(os.Stdout, c.Verbose)
	interactive := !c.NoPager && isTerminal(os.Stdout)

	if c.Target != "" && isFile(c.Target) {
		switch {
		case c.Follow:
			return r.ReplayFileLive(c.Target)
		case interactive:
			return r.ReplayFileInteractive(c.Target)
		default:
			return r.ReplayFile(c.Target)
		}
	}

	if err := a.openStore(); err != nil {
		return err
	}
	ctx := context.Background()
	if c.Target == "" {
		runs, err := a.store.List(ctx)
		if err != nil {
			return err
		}
		replay.PrintList(os.Stdout, runs)
		return nil
	}

	t, err := a.store.Load(ctx, c.Target)
	if err != nil {
		return err
	}
	if interactive {
		return replay.NewPager("Run: " + t.RunID).Run(r.Render(t))
	}
	return r.Replay(t)
}
