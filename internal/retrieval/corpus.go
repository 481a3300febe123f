package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/vinayprograms/gatedagent/internal/logging"
)

// minChunkRunes is the length a paragraph must exceed to be indexed.
const minChunkRunes = 30

const defaultBatchSize = 64

// SplitChunks splits a document on blank lines, keeping trimmed paragraphs
// longer than minChunkRunes.
func SplitChunks(content, source string) []Document {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var docs []Document
	for _, part := range strings.Split(content, "\n\n") {
		c := strings.TrimSpace(part)
		if utf8.RuneCountInString(c) > minChunkRunes {
			docs = append(docs, Document{Content: c, Source: source})
		}
	}
	return docs
}

// LoadCorpus reads every .txt file directly under dir and returns its
// chunks. A missing directory is created with a placeholder readme.
func LoadCorpus(dir string) ([]Document, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create docs dir: %w", err)
		}
		readme := filepath.Join(dir, "readme.txt")
		if err := os.WriteFile(readme, []byte("Place your txt files here."), 0644); err != nil {
			return nil, fmt.Errorf("write placeholder: %w", err)
		}
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		docs = append(docs, SplitChunks(string(data), e.Name())...)
	}
	return docs, nil
}

// Builder embeds a corpus directory into a LocalIndex.
type Builder struct {
	Index     LocalIndex
	Embedder  Embedder
	BatchSize int
	Logger    *logging.Logger
}

// Build indexes dir. A non-empty index is kept as is unless force is set,
// which lets a persistent index act as a cache across restarts. It returns
// the number of indexed documents.
func (b *Builder) Build(ctx context.Context, dir string, force bool) (int, error) {
	logger := b.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("corpus")

	if !force && b.Index.Len() > 0 {
		logger.Info("index loaded from cache", map[string]interface{}{"documents": b.Index.Len()})
		return b.Index.Len(), nil
	}

	docs, err := LoadCorpus(dir)
	if err != nil {
		return 0, err
	}
	if err := b.Index.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset index: %w", err)
	}
	if len(docs) == 0 {
		logger.Warn("no documents found", map[string]interface{}{"dir": dir})
		return 0, ErrEmptyCorpus
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for start := 0; start < len(docs); start += batch {
		end := start + batch
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]
		texts := make([]string, len(chunk))
		for i, d := range chunk {
			texts[i] = d.Content
		}
		vecs, err := b.Embedder.Embed(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		if err := b.Index.Add(ctx, chunk, vecs); err != nil {
			return start, fmt.Errorf("index documents %d-%d: %w", start, end, err)
		}
	}

	logger.Info("index built", map[string]interface{}{"documents": len(docs), "dir": dir})
	return len(docs), nil
}
