package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes and hands the new
// value to OnChange. fsnotify is the primary signal; a slow mtime poll
// covers filesystems where notifications are unreliable.
type Watcher struct {
	Path         string
	OnChange     func(Config)
	PollInterval time.Duration
	Logger       *slog.Logger

	mu      sync.Mutex
	modTime time.Time
}

func NewWatcher(path string, onChange func(Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		Path:         path,
		OnChange:     onChange,
		PollInterval: 60 * time.Second,
		Logger:       logger,
	}
	if info, err := os.Stat(path); err == nil {
		w.modTime = info.ModTime()
	}
	return w
}

// Start runs until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.Logger.Warn("config watcher: fsnotify unavailable, polling only", "error", err)
	} else if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		// Watch the directory so editors that replace the file are seen.
		w.Logger.Warn("config watcher: watch failed, polling only", "path", w.Path, "error", err)
		fw.Close()
		fw = nil
	}

	if fw != nil {
		go func() {
			defer fw.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-fw.Events:
					if !ok {
						return
					}
					if filepath.Clean(event.Name) != filepath.Clean(w.Path) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						w.ReloadIfChanged()
					}
				case err, ok := <-fw.Errors:
					if !ok {
						return
					}
					w.Logger.Warn("config watcher error", "error", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(w.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.ReloadIfChanged()
			}
		}
	}()
}

// ReloadIfChanged reloads only when the file's mtime moved. Reports
// whether OnChange was called.
func (w *Watcher) ReloadIfChanged() bool {
	info, err := os.Stat(w.Path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	if !info.ModTime().After(w.modTime) {
		w.mu.Unlock()
		return false
	}
	w.modTime = info.ModTime()
	w.mu.Unlock()

	cfg, err := Load(w.Path)
	if err != nil {
		w.Logger.Error("config reload rejected", "path", w.Path, "error", err)
		return false
	}
	w.Logger.Info("config reloaded", "path", w.Path)
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
	return true
}
