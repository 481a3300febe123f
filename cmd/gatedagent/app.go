package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vinayprograms/gatedagent/internal/agent"
	"github.com/vinayprograms/gatedagent/internal/config"
	"github.com/vinayprograms/gatedagent/internal/gate"
	"github.com/vinayprograms/gatedagent/internal/llm"
	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/metrics"
	"github.com/vinayprograms/gatedagent/internal/retrieval"
	"github.com/vinayprograms/gatedagent/internal/safety"
	"github.com/vinayprograms/gatedagent/internal/telemetry"
	"github.com/vinayprograms/gatedagent/internal/tools"
	"github.com/vinayprograms/gatedagent/internal/trace"
)

// app holds the wired components for one process.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	embedder retrieval.Embedder
	index    retrieval.LocalIndex
	builder  *retrieval.Builder
	hybrid   *retrieval.Hybrid
	store    trace.Store
	recorder *metrics.ToolRecorder

	closers []func() error
}

// loadConfig reads the config named by g, or the default locations.
func loadConfig(g *Globals) (*config.Config, error) {
	if g.Config != "" {
		return config.LoadFile(g.Config)
	}
	return config.LoadDefault()
}

// newLogger builds the process logger from the [logging] table.
func newLogger(cfg *config.Config, override string) *logging.Logger {
	logger := logging.New()
	level := cfg.Logging.Level
	if override != "" {
		level = override
	}
	logger.SetLevel(logging.ParseLevel(level))
	logger.SetFormat(cfg.Logging.Format)
	return logger
}

// newApp opens config and the components shared by every command that
// touches retrieval or traces.
func newApp(g *Globals) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(cfg, g.LogLevel)}
	if err := a.openRetrieval(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", logging.Fields{"error": err.Error()})
		}
	}
	a.closers = nil
}

// openRetrieval wires the embedder, its cache and the local index. Without
// an embedding key the agent runs web-only.
func (a *app) openRetrieval() error {
	rc := a.cfg.Retrieval
	key := a.cfg.GetAPIKey()
	if key == "" {
		a.logger.Warn("no API key; local knowledge base disabled", logging.Fields{"env": a.cfg.LLM.APIKeyEnv})
		return nil
	}

	var embedder retrieval.Embedder = retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
		APIKey:  key,
		Model:   rc.EmbeddingModel,
		BaseURL: a.cfg.LLM.BaseURL,
	})
	if rc.EmbeddingCacheDir != "" {
		ttl, err := a.cfg.EmbeddingCacheTTL()
		if err != nil {
			return err
		}
		cached, err := retrieval.OpenCachedEmbedder(rc.EmbeddingCacheDir, rc.EmbeddingModel, ttl, embedder)
		if err != nil {
			return err
		}
		a.addCloser(cached.Close)
		embedder = cached
	}
	a.embedder = embedder

	switch rc.Index {
	case "sqlite":
		idx, err := retrieval.OpenSQLiteIndex(rc.IndexPath)
		if err != nil {
			return err
		}
		a.addCloser(idx.Close)
		a.index = idx
	default:
		a.index = retrieval.NewFlatIndex()
	}
	a.builder = &retrieval.Builder{Index: a.index, Embedder: a.embedder, Logger: a.logger}
	return nil
}

// buildIndex loads the corpus into the index unless a persisted index is
// already populated. An empty corpus is not fatal.
func (a *app) buildIndex(ctx context.Context, force bool) error {
	if a.builder == nil {
		return nil
	}
	_, err := a.builder.Build(ctx, a.cfg.Retrieval.DocsDir, force)
	if errors.Is(err, retrieval.ErrEmptyCorpus) {
		return nil
	}
	return err
}

// openSearch builds the web backend and the hybrid retriever.
func (a *app) openSearch() error {
	sc := a.cfg.Search
	web, err := retrieval.NewWebSearcher(sc.Provider, a.cfg.GetSearchAPIKey(), sc.BaseURL, retrieval.HTTPOptions{
		Timeout:    a.cfg.SearchTimeout(),
		MaxRetries: sc.MaxRetries,
		RatePerSec: sc.RatePerSec,
	})
	if err != nil {
		// keep running on the local index alone
		a.logger.Warn("web search disabled", logging.Fields{"provider": sc.Provider, "error": err.Error()})
		web = nil
	}

	cfg := retrieval.HybridConfig{
		Web:       web,
		TopK:      a.cfg.Retrieval.TopK,
		Threshold: a.cfg.Retrieval.LocalThreshold,
		WebN:      a.cfg.Retrieval.WebResults,
		CacheSize: a.cfg.Cache.SearchSize,
		Logger:    a.logger,
	}
	if a.index != nil {
		cfg.Index = a.index
		cfg.Embedder = a.embedder
	}
	a.hybrid, err = retrieval.NewHybrid(cfg)
	return err
}

// openStore opens the configured trace store.
func (a *app) openStore() error {
	switch a.cfg.Trace.Store {
	case "sqlite":
		s, err := trace.OpenSQLiteStore(a.cfg.Trace.SQLitePath)
		if err != nil {
			return err
		}
		a.addCloser(s.Close)
		a.store = s
	default:
		s, err := trace.NewFileStore(a.cfg.Trace.Dir)
		if err != nil {
			return err
		}
		a.store = s
	}
	return nil
}

// newController wires the full agent. Telemetry is started here and shut
// down by close.
func (a *app) newController(ctx context.Context, acfg agent.Config, obs agent.Observer) (*agent.Controller, error) {
	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry, version, os.Stderr)
	if err != nil {
		return nil, err
	}
	a.addCloser(func() error { return shutdown(context.Background()) })

	model, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     a.cfg.GetAPIKey(),
		BaseURL:    a.cfg.LLM.BaseURL,
		Model:      a.cfg.LLM.Model,
		SystemRole: a.cfg.LLM.SystemRole,
		Timeout:    a.cfg.LLMTimeout(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := a.openSearch(); err != nil {
		return nil, err
	}
	if err := a.openStore(); err != nil {
		return nil, err
	}
	if a.cfg.Metrics.CSVPath != "" {
		rec, err := metrics.OpenToolRecorder(a.cfg.Metrics.CSVPath, a.logger)
		if err != nil {
			return nil, err
		}
		a.addCloser(rec.Close)
		a.recorder = rec
	}

	var calcCache *tools.Cache[tools.CalcResult]
	if a.cfg.Cache.CalculatorSize > 0 {
		calcCache, err = tools.NewCache[tools.CalcResult]("calculator", a.cfg.Cache.CalculatorSize)
		if err != nil {
			return nil, err
		}
	}

	categories := safety.DefaultCategories()
	if a.cfg.Safety.RulesFile != "" {
		categories, err = safety.LoadRules(a.cfg.Safety.RulesFile)
		if err != nil {
			return nil, err
		}
	}

	return agent.New(acfg, agent.Options{
		Model:        model,
		Search:       a.hybrid,
		Calculator:   tools.NewCalculator(calcCache),
		Gate:         gate.New(a.cfg.Agent.MinSources, a.cfg.Agent.RelevanceThreshold),
		Safety:       safety.NewKeywordFilter(categories...),
		Store:        a.store,
		ToolRecorder: a.recorder,
		Observer:     obs,
		Logger:       a.logger,
	})
}

// watchCorpus rebuilds the index on corpus changes and drops memoized
// searches after each rebuild.
func (a *app) watchCorpus(ctx context.Context) error {
	if a.builder == nil || !a.cfg.Retrieval.Watch {
		<-ctx.Done()
		return nil
	}
	w := &retrieval.Watcher{
		Builder: a.builder,
		Dir:     a.cfg.Retrieval.DocsDir,
		Logger:  a.logger,
		OnRebuild: func(n int, err error) {
			if a.hybrid != nil {
				a.hybrid.Purge()
			}
		},
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("corpus watcher: %w", err)
	}
	return nil
}
