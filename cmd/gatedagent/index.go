package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/vinayprograms/gatedagent/internal/retrieval"
)

// Run builds the local index.
func (c *IndexCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.close()

	if a.builder == nil {
		return fmt.Errorf("indexing needs an embedding API key (set %s)", a.cfg.LLM.APIKeyEnv)
	}
	dir := a.cfg.Retrieval.DocsDir
	if c.Dir != "" {
		dir = c.Dir
	}
	n, err := a.builder.Build(ctx, dir, c.Force)
	if errors.Is(err, retrieval.ErrEmptyCorpus) {
		fmt.Printf("no documents in %s\n", dir)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d documents from %s\n", n, dir)
	return nil
}
