package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/gatedagent/internal/agent"
	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/server"
)

// Run serves until interrupted.
func (c *ServeCmd) Run(g *Globals) error {
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
	if err := a.buildIndex(ctx, false); err != nil {
		return err
	}
	ctrl, err := a.newController(ctx, acfg, nil)
	if err != nil {
		return err
	}

	sc := a.cfg.Server
	svc := server.NewService(ctrl, sc.MaxRuns, a.logger)

	grp, ctx := errgroup.WithContext(ctx)
	if !c.NoNATS {
		l, err := server.ListenNATS(svc, sc.NATSURL, sc.Subject, sc.Queue)
		if err != nil {
			return err
		}
		grp.Go(func() error {
			<-ctx.Done()
			return l.Close()
		})
	}
	if !c.NoHTTP {
		router := server.NewRouter(svc, a.store, version)
		grp.Go(func() error {
			return server.ServeHTTP(ctx, sc.HTTPAddr, router, a.logger)
		})
	}
	grp.Go(func() error {
		return a.watchCorpus(ctx)
	})

	a.logger.Info("serving", logging.Fields{"nats": !c.NoNATS, "http": !c.NoHTTP})
	return grp.Wait()
}
