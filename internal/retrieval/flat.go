package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FlatIndex is an exact in-memory nearest-neighbour index. Distances are
// squared Euclidean, the same scale as a flat L2 index.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	docs    []Document
	vectors [][]float32
}

// NewFlatIndex creates an empty index. The dimension is fixed by the first
// Add.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add implements LocalIndex.
func (f *FlatIndex) Add(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("add: %d documents but %d vectors", len(docs), len(vectors))
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, v := range vectors {
		if f.dim == 0 {
			f.dim = len(v)
		}
		if len(v) != f.dim {
			return fmt.Errorf("add %s: %w (got %d, want %d)", docs[i].Source, ErrDimensionMismatch, len(v), f.dim)
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		f.docs = append(f.docs, docs[i])
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search implements LocalIndex.
func (f *FlatIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.docs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != f.dim {
		return nil, fmt.Errorf("search: %w (got %d, want %d)", ErrDimensionMismatch, len(vector), f.dim)
	}

	hits := make([]Hit, len(f.docs))
	for i, v := range f.vectors {
		hits[i] = Hit{Document: f.docs[i], Distance: squaredL2(vector, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len implements LocalIndex.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.docs)
}

// Reset implements LocalIndex.
func (f *FlatIndex) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = nil
	f.vectors = nil
	f.dim = 0
	return nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
