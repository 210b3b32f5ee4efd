package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// changeDebounce collapses the burst of events editors emit for one save.
const changeDebounce = 500 * time.Millisecond

// WatchConfig watches the configuration file at path and emits on the
// returned channel once per debounced change. The configuration itself is
// never reloaded; callers use the signal to tell the operator that a
// restart is required. The channel is closed when ctx is done.
//
// The parent directory is watched instead of the file so atomic saves
// (write temp file, rename over the original) are still observed.
func WatchConfig(ctx context.Context, path string) <-chan struct{} {
	changed := make(chan struct{}, 1)

	absPath, err := filepath.Abs(path)
	if err != nil {
		slog.Warn("Could not resolve absolute path for config watch", "file", path, "error", err)
		close(changed)
		return changed
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(changed)
		return changed
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		slog.Warn("Could not watch config directory", "dir", filepath.Dir(absPath), "error", err)
		watcher.Close()
		close(changed)
		return changed
	}
	slog.Debug("Watching configuration file", "file", absPath)

	go func() {
		var (
			mu    sync.Mutex
			timer *time.Timer
			done  bool
		)
		defer func() {
			mu.Lock()
			done = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			watcher.Close()
			close(changed)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(changeDebounce, func() {
					mu.Lock()
					defer mu.Unlock()
					if done {
						return
					}
					select {
					case changed <- struct{}{}:
					default:
					}
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher encountered an error", "error", err)
			}
		}
	}()

	return changed
}
