package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/metrics"
	"github.com/vinayprograms/gatedagent/internal/tools"
)

// errWebFailed marks a result that must not be memoized.
var errWebFailed = errors.New("web search failed")

// HybridConfig configures a Hybrid retriever.
type HybridConfig struct {
	Index     LocalIndex  // nil disables the local path
	Embedder  Embedder    // required when Index is set
	Web       WebSearcher // nil disables the web fallback
	TopK      int
	Threshold float64 // squared L2 distance accepted as a local hit
	WebN      int
	CacheSize int // 0 disables memoization
	Logger    *logging.Logger
}

// Hybrid consults the local index first and falls back to web search on a
// miss. Local hits are never blended with web results.
type Hybrid struct {
	index     LocalIndex
	embedder  Embedder
	web       WebSearcher
	topK      int
	threshold float64
	webN      int
	cache     *tools.Cache[Result]
	logger    *logging.Logger
}

// NewHybrid creates a retriever.
func NewHybrid(cfg HybridConfig) (*Hybrid, error) {
	if cfg.Index != nil && cfg.Embedder == nil {
		return nil, fmt.Errorf("hybrid retriever: local index requires an embedder")
	}
	h := &Hybrid{
		index:     cfg.Index,
		embedder:  cfg.Embedder,
		web:       cfg.Web,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		webN:      cfg.WebN,
		logger:    cfg.Logger,
	}
	if h.topK <= 0 {
		h.topK = defaultTopK
	}
	if h.webN <= 0 {
		h.webN = defaultWebN
	}
	if h.threshold <= 0 {
		h.threshold = defaultLocal
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	h.logger = h.logger.WithComponent("retrieval")
	if cfg.CacheSize > 0 {
		c, err := tools.NewCache[Result]("search", cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		h.cache = c
	}
	return h, nil
}

// Search returns scored evidence for query, sorted by score descending.
// Backend failures degrade to an EMPTY result; only context errors are
// returned.
func (h *Hybrid) Search(ctx context.Context, query string) (Result, error) {
	if h.cache == nil {
		res, err := h.retrieve(ctx, query)
		return settle(res, err)
	}
	for {
		res, _, err := h.cache.Do(query, func() (Result, error) {
			return h.retrieve(ctx, query)
		})
		// A shared call ends with the context of the caller that started
		// it. Waiters whose own context is live go again.
		if isContextErr(err) && ctx.Err() == nil {
			continue
		}
		return settle(res, err)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func settle(res Result, err error) (Result, error) {
	if errors.Is(err, errWebFailed) {
		return Result{Status: StatusEmpty, Items: []Evidence{}}, nil
	}
	return res, err
}

func (h *Hybrid) retrieve(ctx context.Context, query string) (Result, error) {
	start := time.Now()

	if local, ok := h.searchLocal(ctx, query); ok {
		metrics.RetrievalsTotal.WithLabelValues("local").Inc()
		h.logger.Info("local hit", map[string]interface{}{
			"query":    query,
			"duration": time.Since(start).String(),
		})
		return Result{Status: StatusSuccess, Items: []Evidence{local}}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	items, err := h.searchWeb(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		metrics.RetrievalsTotal.WithLabelValues("empty").Inc()
		h.logger.Warn("web search failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return Result{}, fmt.Errorf("%w: %v", errWebFailed, err)
	}
	if len(items) == 0 {
		metrics.RetrievalsTotal.WithLabelValues("empty").Inc()
		return Result{Status: StatusEmpty, Items: []Evidence{}}, nil
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	metrics.RetrievalsTotal.WithLabelValues("web").Inc()
	h.logger.Debug("web results", map[string]interface{}{
		"query":    query,
		"count":    len(items),
		"duration": time.Since(start).String(),
	})
	return Result{Status: StatusSuccess, Items: items}, nil
}

// searchLocal reports a local hit when the nearest candidate is under the
// threshold, combining every candidate under it into one evidence item.
func (h *Hybrid) searchLocal(ctx context.Context, query string) (Evidence, bool) {
	if h.index == nil || h.index.Len() == 0 {
		return Evidence{}, false
	}
	vecs, err := h.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		h.logger.Warn("query embedding failed, falling back to web", map[string]interface{}{
			"error": fmt.Sprint(err),
		})
		return Evidence{}, false
	}
	hits, err := h.index.Search(ctx, vecs[0], h.topK)
	if err != nil {
		h.logger.Warn("local search failed, falling back to web", map[string]interface{}{
			"error": err.Error(),
		})
		return Evidence{}, false
	}
	if len(hits) == 0 || hits[0].Distance >= h.threshold {
		return Evidence{}, false
	}

	var parts []string
	for _, hit := range hits {
		if hit.Distance < h.threshold {
			parts = append(parts, fmt.Sprintf("--- (Source: %s) ---\n%s", hit.Source, hit.Content))
		}
	}
	return Evidence{
		Content: LocalPrefix + strings.Join(parts, "\n\n"),
		Source:  LocalSource,
		Title:   LocalTitle,
		Score:   LocalScore,
	}, true
}

func (h *Hybrid) searchWeb(ctx context.Context, query string) ([]Evidence, error) {
	if h.web == nil {
		return nil, nil
	}
	results, err := h.web.Search(ctx, query, h.webN)
	if err != nil {
		return nil, err
	}
	if len(results) > h.webN {
		results = results[:h.webN]
	}
	items := make([]Evidence, 0, len(results))
	for rank, r := range results {
		items = append(items, Evidence{
			Content: r.Content,
			Source:  r.Link,
			Title:   r.Title,
			Score:   Confidence(query, r.Content, rank),
		})
	}
	return items, nil
}

// Purge drops memoized results, e.g. after the index is rebuilt.
func (h *Hybrid) Purge() {
	if h.cache != nil {
		h.cache.Purge()
	}
}
