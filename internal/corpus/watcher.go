package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultDebounce groups the burst of events editors emit for one save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the index whenever the corpus file changes. A failed
// rebuild is logged and the previously published index keeps serving.
type Watcher struct {
	Indexer  *Indexer
	Path     string
	Columns  Columns
	Debounce time.Duration
	Logger   *zap.Logger

	// rebuilt, when set, is called after every rebuild attempt.
	rebuilt func(error)
}

// Run watches until ctx is done. The directory is watched rather than the
// file so atomic replace-on-save is seen.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("corpus watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("corpus watcher: %w", err)
	}
	logger.Info("watching corpus", zap.String("path", target))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("corpus watcher error", zap.Error(err))
		case <-timer.C:
			_, err := w.Indexer.BuildFile(ctx, afero.NewOsFs(), target, w.Columns)
			if err != nil {
				logger.Error("corpus rebuild failed, keeping previous index", zap.Error(err))
			}
			if w.rebuilt != nil {
				w.rebuilt(err)
			}
		}
	}
}
