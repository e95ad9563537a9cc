package media

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// watcherDirPerm is the permission mode for the library directory
	// when ensuring it exists before starting the watcher.
	watcherDirPerm = fs.FileMode(0o755)

	// watcherDebounceInterval batches rapid filesystem events (a camera
	// import drops many files at once) into a single trigger.
	watcherDebounceInterval = 2 * time.Second
)

// Watcher monitors the media library directory and invokes the trigger
// when new files settle. The trigger is expected to coalesce on its own;
// the watcher only debounces event bursts.
type Watcher struct {
	library *Library
	trigger func()
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over the library that calls trigger after
// each settled batch of changes.
func NewWatcher(library *Library, logger *slog.Logger, trigger func()) *Watcher {
	return &Watcher{
		library: library,
		trigger: trigger,
		logger:  logger,
	}
}

// Watch blocks until the context is cancelled. Directories are watched
// recursively; new subdirectories are picked up as they appear.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	dir := w.library.Dir()

	if err := os.MkdirAll(dir, watcherDirPerm); err != nil {
		return fmt.Errorf("creating library dir: %w", err)
	}

	if err := w.addRecursive(dir); err != nil {
		return fmt.Errorf("watching library dir: %w", err)
	}

	w.logger.Info("library watcher started", slog.String("dir", dir))

	var (
		pending   int
		lastEvent time.Time
	)

	ticker := time.NewTicker(watcherDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				// Use Lstat so symlinks pointing outside the library
				// are not followed into a recursive watch.
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watching new directory",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				pending++
				lastEvent = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if pending == 0 || time.Since(lastEvent) < watcherDebounceInterval {
				continue
			}

			w.logger.Debug("library changed", slog.Int("events", pending))
			pending = 0
			w.trigger()
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	// Partial downloads and editor temp files churn constantly during
	// imports and never become assets.
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part")
}
