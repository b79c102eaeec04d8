// Package watch keeps a store's sidecar index in step with edits made to the
// data file by other programs.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long the watcher waits after the last event before it
// re-indexes.
const Debounce = 200 * time.Millisecond

// Reindexer rebuilds an index from its data file.
type Reindexer interface {
	RebuildIndex() error
}

// Callback is called after each re-index with its outcome.
type Callback func(path string, err error)

// Run watches the directory holding path and calls st.RebuildIndex once
// writes to path settle. The directory is watched rather than the file so
// that atomic replacements (rename over the file) are seen. Run returns when
// ctx is cancelled.
func Run(ctx context.Context, st Reindexer, path string, logger *slog.Logger, cb Callback) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(Debounce)
			fire = timer.C
		} else {
			timer.Reset(Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			err := st.RebuildIndex()
			if err != nil {
				logger.Warn("watcher: reindex failed", slog.String("path", abs), slog.String("error", err.Error()))
			} else {
				logger.Debug("watcher: reindexed", slog.String("path", abs))
			}
			if cb != nil {
				cb(abs, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			} else if ev.Op&fsnotify.Remove != 0 {
				logger.Warn("watcher: data file removed", slog.String("path", abs))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
