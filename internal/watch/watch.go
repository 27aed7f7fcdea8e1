// Package watch reruns test cases when their source or golden files
// change on disk. Events are debounced so an editor's rapid
// write/rename dance triggers a single rerun.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"goldtest/internal/config"
	"goldtest/internal/logging"
)

// Rerun is called with the settled set of changed file paths.
type Rerun func(ctx context.Context, changed []string)

// Watcher watches suite roots and triggers reruns on change.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	cfg         *config.Config
	suiteRoot   string
	rerun       Rerun
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity for debugging.
type Stats struct {
	Events        int
	Reruns        int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// New creates a Watcher over the configured suite roots.
func New(suiteRoot string, cfg *config.Config, rerun Rerun) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		cfg:         cfg,
		suiteRoot:   suiteRoot,
		rerun:       rerun,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Settle rapid editor saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.cfg.Suite.Roots {
		dir := filepath.Join(w.suiteRoot, root)
		if err := w.addRecursive(dir); err != nil {
			logging.Get(logging.CategoryWatch).Warn("Watch failed for %s: %v", dir, err)
		} else {
			logging.Watch("Watching %s", dir)
		}
	}

	go w.loop(ctx)
	return nil
}

// addRecursive registers dir and its subdirectories; fsnotify watches
// are not recursive on their own.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// StatsSnapshot returns a copy of the current stats.
func (w *Watcher) StatsSnapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// loop is the watcher's main event loop.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// interesting reports whether a changed path can affect a case: test
// sources and golden files count, pending snapshots and editor junk do
// not.
func (w *Watcher) interesting(path string) bool {
	if strings.HasSuffix(path, ".pending") || strings.HasSuffix(path, "~") {
		return false
	}
	ext := filepath.Ext(path)
	for _, e := range w.cfg.Suite.SourceExtensions {
		if ext == e {
			return true
		}
	}
	return strings.HasSuffix(path, w.cfg.Suite.GoldenSuffix) ||
		strings.HasSuffix(path, w.cfg.Suite.StdoutSuffix)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return // Ignore chmod
	}
	if !w.interesting(event.Name) {
		// New directories still need a watch.
		if event.Op&fsnotify.Create != 0 {
			_ = w.watcher.Add(event.Name)
		}
		return
	}

	logging.WatchDebug("Event %s for %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush fires the rerun callback for events past the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	if len(settled) > 0 {
		w.stats.Reruns++
	}
	w.mu.Unlock()

	if len(settled) > 0 {
		logging.Watch("Rerunning for %d changed files", len(settled))
		w.rerun(ctx, settled)
	}
}
