// Package chanwatch implements the Directory Watcher: it watches the
// runtime directory for in.* pipes being created or removed and fires
// callbacks so the Input Channel Manager can register or deregister
// readers.
package chanwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/adamavenir/chorus/internal/runtime"
)

var inputGlob = glob.MustCompile("in{,.*}")

func isInputName(name string) bool {
	return inputGlob.Match(name)
}

// Watcher watches one directory for input-artifact creation and
// removal.
type Watcher struct {
	dir string
	log *slog.Logger

	OnAdd    func(path, channel string)
	OnRemove func(path string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a Watcher rooted at dir. Call Scan before Start to
// converge on any artifacts already present, then Start to begin
// watching for future changes.
func New(dir string, log *slog.Logger) *Watcher {
	return &Watcher{dir: dir, log: log}
}

// Scan fires OnAdd for every input artifact already present in the
// directory, so the runtime converges to the current filesystem state
// without depending on a race-free startup ordering against Start.
func (w *Watcher) Scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning runtime dir %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isInputName(name) {
			continue
		}
		path := filepath.Join(w.dir, name)
		if !runtime.IsFIFO(path) {
			continue
		}
		kind, channel := runtime.Classify(name)
		if kind != runtime.KindInput {
			continue
		}
		if w.OnAdd != nil {
			w.OnAdd(path, channel)
		}
	}
	return nil
}

// Start begins watching the directory in a background goroutine until
// ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error("directory watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	kind, channel := runtime.Classify(name)

	switch kind {
	case runtime.KindInput:
		if event.Has(fsnotify.Create) {
			if w.OnAdd != nil {
				w.OnAdd(event.Name, channel)
			}
		}
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			if w.OnRemove != nil {
				w.OnRemove(event.Name)
			}
		}
	case runtime.KindOutput:
		// out.* artifacts are observed for logging/auditing only; the
		// daemon never reads or writes them directly.
		if event.Has(fsnotify.Create) {
			w.log.Debug("output channel observed", "path", event.Name, "channel", channel)
		}
	default:
		// Unknown names are ignored entirely.
	}
}

// Stop closes the underlying fsnotify watcher, if running.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
