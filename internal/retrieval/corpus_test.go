package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longPara = "Tokyo's rail network is punctual and covers every major district."

func TestSplitChunks(t *testing.T) {
	content := "short\n\n" + longPara + "\r\n\r\n   " + longPara + " again   \n\n\n"
	docs := SplitChunks(content, "tokyo.txt")
	require.Len(t, docs, 2)
	assert.Equal(t, longPara, docs[0].Content)
	assert.Equal(t, longPara+" again", docs[1].Content)
	assert.Equal(t, "tokyo.txt", docs[0].Source)
}

func TestSplitChunksCountsRunes(t *testing.T) {
	// 20 CJK runes: 60 bytes but below the rune limit
	assert.Empty(t, SplitChunks(strings.Repeat("东", 20), "a.txt"))
	assert.Len(t, SplitChunks(strings.Repeat("东", 31), "a.txt"), 1)
}

func TestLoadCorpusCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	docs, err := LoadCorpus(dir)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.FileExists(t, filepath.Join(dir, "readme.txt"))
}

func TestLoadCorpusReadsTxtOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(longPara), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte(longPara), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0755))

	docs, err := LoadCorpus(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].Source)
}

func TestBuilderBuild(t *testing.T) {
	dir := t.TempDir()
	var body strings.Builder
	for i := 0; i < 5; i++ {
		body.WriteString(longPara + strings.Repeat("!", i) + "\n\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.txt"), []byte(body.String()), 0644))

	emb := &mapEmbedder{fallback: []float32{1, 2}}
	idx := NewFlatIndex()
	b := &Builder{Index: idx, Embedder: emb, BatchSize: 2}

	n, err := b.Build(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, idx.Len())
	assert.Equal(t, 3, emb.calls, "five docs in batches of two")

	// non-empty index is reused
	n, err = b.Build(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, emb.calls)

	// forced rebuild replaces contents
	n, err = b.Build(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, idx.Len())
}

func TestBuilderEmptyCorpus(t *testing.T) {
	b := &Builder{Index: NewFlatIndex(), Embedder: &mapEmbedder{}}
	_, err := b.Build(context.Background(), t.TempDir(), false)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestBuilderEmbedError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(longPara), 0644))
	b := &Builder{Index: NewFlatIndex(), Embedder: &mapEmbedder{err: errBoom}}
	_, err := b.Build(context.Background(), dir, true)
	assert.ErrorIs(t, err, errBoom)
}
