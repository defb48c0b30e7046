package config

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// FileWatcher polls a file for changes.
// Polling survives the symlink swaps used by mounted ConfigMaps.
type FileWatcher struct {
	path     string
	interval time.Duration
	lastMod  time.Time
	logger   *slog.Logger
}

func NewFileWatcher(path string, interval time.Duration, logger *slog.Logger) *FileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		path:     path,
		interval: interval,
		logger:   logger.With("component", "config_watcher"),
	}
}

// Watch calls onChange each time the file's mtime moves forward. It returns
// when ctx is done.
func (w *FileWatcher) Watch(ctx context.Context, onChange func()) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	}

	w.logger.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue // File might be temporarily gone during swap
			}

			if info.ModTime().After(w.lastMod) {
				w.logger.Info("config file changed, reloading", "path", w.path)
				w.lastMod = info.ModTime()
				onChange()
			}
		}
	}
}

// WatchAndReload keeps c in sync with l's YAML file until ctx is done.
// Rejected reloads are logged and the previous snapshot stays active.
func WatchAndReload[T any](ctx context.Context, c *Container[T], l *Loader[T], interval time.Duration, logger *slog.Logger) {
	if l.Path() == "" {
		return
	}
	w := NewFileWatcher(l.Path(), interval, logger)
	w.Watch(ctx, func() {
		if err := c.Reload(l); err != nil {
			w.logger.Error("config reload rejected", "path", l.Path(), "error", err)
		}
	})
}
