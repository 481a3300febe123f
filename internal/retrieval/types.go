// Package retrieval implements hybrid retrieval: a trusted local vector index
// consulted first, with a web search fallback scored on the same scale.
package retrieval

import (
	"context"
	"errors"
)

// Result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusEmpty   = "EMPTY"
)

// Labels used for local knowledge base hits.
const (
	LocalSource  = "Local DB (Multiple Hits)"
	LocalTitle   = "Local Knowledge Base Match"
	LocalPrefix  = "[Verified Local Guide]:\n"
	LocalScore   = 1.0
	defaultTopK  = 3
	defaultWebN  = 5
	defaultLocal = 0.95
)

var (
	// ErrEmptyCorpus is returned when an index is built from a corpus with no
	// usable chunks.
	ErrEmptyCorpus = errors.New("corpus has no documents")

	// ErrDimensionMismatch is returned when a vector does not match the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Evidence is one source-attributed, scored piece of retrieved content.
type Evidence struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
}

// Result is the outcome of one hybrid retrieval.
type Result struct {
	Status string     `json:"status"`
	Items  []Evidence `json:"results"`
}

// Document is one chunk of the local corpus.
type Document struct {
	Content string `json:"content"`
	Source  string `json:"source"` // file name
}

// Hit is a local index candidate with its L2 distance (lower is closer).
type Hit struct {
	Document
	Distance float64
}

// LocalIndex is a nearest-neighbour index over embedded documents.
type LocalIndex interface {
	// Add stores documents with their embeddings.
	Add(ctx context.Context, docs []Document, vectors [][]float32) error
	// Search returns up to k hits ordered by ascending distance.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Len returns the number of indexed documents.
	Len() int
	// Reset removes every document.
	Reset(ctx context.Context) error
}

// Embedder converts text to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// WebResult is one ranked snippet from a web search backend.
type WebResult struct {
	Content string `json:"content"`
	Link    string `json:"link"`
	Title   string `json:"title"`
}

// WebSearcher queries a web search backend for up to n ranked results.
type WebSearcher interface {
	Search(ctx context.Context, query string, n int) ([]WebResult, error)
	Name() string
}
