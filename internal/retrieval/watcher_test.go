package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	idx := NewFlatIndex()
	rebuilt := make(chan int, 4)
	w := &Watcher{
		Builder:   &Builder{Index: idx, Embedder: &mapEmbedder{fallback: []float32{1}}},
		Dir:       dir,
		Debounce:  20 * time.Millisecond,
		OnRebuild: func(n int, err error) { rebuilt <- n },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(longPara), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.txt"), []byte(longPara), 0644))

	select {
	case n := <-rebuilt:
		assert.Equal(t, 1, n)
	case <-time.After(3 * time.Second):
		t.Fatal("index was not rebuilt")
	}
	assert.Equal(t, 1, idx.Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	w := &Watcher{Builder: &Builder{}, Dir: filepath.Join(t.TempDir(), "missing")}
	assert.Error(t, w.Run(context.Background()))
}
