package retrieval

import (
	"context"
	"errors"
	"sync"
)

// mapEmbedder returns fixed vectors per text, and fallback otherwise.
type mapEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	calls    int
	texts    int
	err      error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts += len(texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = m.fallback
		}
	}
	return out, nil
}

type fakeWeb struct {
	mu      sync.Mutex
	results []WebResult
	err     error
	calls   int
}

func (f *fakeWeb) Name() string { return "fake" }

func (f *fakeWeb) Search(_ context.Context, _ string, n int) ([]WebResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > n {
		return f.results[:n], nil
	}
	return f.results, nil
}

func (f *fakeWeb) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBoom = errors.New("boom")

// blockingWeb holds its first call until that caller's context ends. Later
// calls answer immediately.
type blockingWeb struct {
	fakeWeb
	started chan struct{}
	once    sync.Once
}

func (b *blockingWeb) Search(ctx context.Context, q string, n int) ([]WebResult, error) {
	b.mu.Lock()
	first := b.calls == 0
	if first {
		b.calls++
	}
	b.mu.Unlock()
	if first {
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.fakeWeb.Search(ctx, q, n)
}
