// internal/trigger/filesystem.go
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Filesystem watches individual files for changes. Editors and config
// management tools usually replace files instead of writing them in place,
// so the parent directory is watched and events are matched by path.
type Filesystem struct {
	name     string
	files    map[string]bool // cleaned absolute paths
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	started  atomic.Bool
	mu       sync.Mutex
	pending  map[string]*time.Timer
}

// NewFilesystem creates a new filesystem trigger for cfg.WatchPaths.
func NewFilesystem(name string, cfg Config) (*Filesystem, error) {
	if len(cfg.WatchPaths) == 0 {
		return nil, fmt.Errorf("filesystem trigger %s has no watch paths", name)
	}

	files := make(map[string]bool)
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range cfg.WatchPaths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Filesystem{
		name:     name,
		files:    files,
		dirs:     dirs,
		debounce: cfg.Debounce,
		logger:   logger,
		watcher:  watcher,
		pending:  make(map[string]*time.Timer),
	}, nil
}

func (f *Filesystem) Name() string {
	return f.name
}

func (f *Filesystem) Start(ctx context.Context, events chan<- Event) error {
	if !f.started.CompareAndSwap(false, true) {
		return errors.New("filesystem trigger already started")
	}

	for _, dir := range f.dirs {
		if err := f.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(event, events)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("file watcher error", "trigger", f.name, "error", err)
		}
	}
}

func (f *Filesystem) Stop() error {
	// Cancel all pending debounce timers to prevent goroutine leaks
	f.mu.Lock()
	for path, timer := range f.pending {
		timer.Stop()
		delete(f.pending, path)
	}
	f.mu.Unlock()

	err := f.watcher.Close()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

func (f *Filesystem) handleEvent(fsEvent fsnotify.Event, events chan<- Event) {
	path := filepath.Clean(fsEvent.Name)
	if !f.files[path] {
		return
	}

	var eventType string
	switch {
	case fsEvent.Has(fsnotify.Create), fsEvent.Has(fsnotify.Write):
		eventType = TypeFileModified
	case fsEvent.Has(fsnotify.Remove), fsEvent.Has(fsnotify.Rename):
		eventType = TypeFileDeleted
	default:
		return
	}

	if f.debounce > 0 {
		f.schedule(path, eventType, events)
		return
	}
	f.sendEvent(path, eventType, events)
}

// schedule restarts the debounce timer for path. The last event type wins,
// so a replace (remove followed by create) is reported as a modification.
func (f *Filesystem) schedule(path, eventType string, events chan<- Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if timer, exists := f.pending[path]; exists {
		timer.Stop()
	}

	f.pending[path] = time.AfterFunc(f.debounce, func() {
		f.mu.Lock()
		delete(f.pending, path)
		f.mu.Unlock()
		f.sendEvent(path, eventType, events)
	})
}

func (f *Filesystem) sendEvent(path, eventType string, events chan<- Event) {
	if !send(events, Event{Source: f.name, Type: eventType, Path: path, Timestamp: time.Now()}) {
		f.logger.Debug("dropped file event, queue full", "trigger", f.name, "path", path)
	}
}
