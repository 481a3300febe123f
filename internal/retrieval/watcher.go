package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vinayprograms/gatedagent/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the local index when .txt files in the corpus directory
// change. Bursts of events are coalesced into one rebuild.
type Watcher struct {
	Builder  *Builder
	Dir      string
	Debounce time.Duration
	// OnRebuild, if set, runs after each rebuild attempt.
	OnRebuild func(n int, err error)
	Logger    *logging.Logger
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("watcher")
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			logger.Debug("corpus changed", map[string]interface{}{"file": ev.Name, "op": ev.Op.String()})
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		case <-timer.C:
			n, err := w.Builder.Build(ctx, w.Dir, true)
			if err != nil {
				logger.Error("index rebuild failed", map[string]interface{}{"error": err.Error()})
			} else {
				logger.Info("index rebuilt", map[string]interface{}{"documents": n})
			}
			if w.OnRebuild != nil {
				w.OnRebuild(n, err)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(filepath.Base(ev.Name), ".txt") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
