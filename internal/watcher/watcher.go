// Package watcher turns filesystem events under a source root into debounced,
// serialized rebuild requests.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kazoeru/internal/corpus"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

const defaultDebounce = 400 * time.Millisecond

// Change is one debounced batch of events.
type Change struct {
	// Paths lists the touched paths in lexical order.
	Paths []string
	// Removed is set when any path in the batch was removed or renamed away.
	Removed bool
}

// Handler reacts to a batch of changes. Handlers never run concurrently.
type Handler func(ctx context.Context, c Change) error

// Watcher watches one source root and calls its handler after the root has
// been quiet for the debounce interval.
type Watcher struct {
	root       string
	single     bool // root is a file; its parent directory is watched
	extensions []string
	onChange   Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]bool // path -> removed
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the root must be quiet before the handler runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for root. extensions filters which created or
// written files count as changes (empty = all); removals always count.
func NewWatcher(root string, extensions []string, onChange Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:       filepath.Clean(root),
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the watches. Events are buffered by the kernel until Run
// starts consuming them.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("%w: watch root: %w", apperrors.ErrInvalidInput, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.single = !info.IsDir()
	if w.single {
		err = fw.Add(filepath.Dir(w.root))
	} else {
		err = w.addTree(fw, w.root)
	}
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.watcher = fw
	w.logger.Debug("watcher started",
		zap.String("root", w.root),
		zap.Strings("extensions", w.extensions),
		zap.Duration("debounce", w.debounce))
	return nil
}

// addTree watches dir and every directory below it. Symbolic links are not
// followed, matching the corpus walk.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("watcher cannot descend", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			return fs.SkipDir
		}
		return nil
	})
}

// Run consumes events until ctx is cancelled, calling the handler for each
// debounced batch on the calling goroutine. Handler errors are logged and do
// not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	defer w.close()

	timer := time.NewTimer(w.debounce)
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
			if w.handleEvent(fw, ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; treat the whole root as changed.
				w.mark(w.root, true)
				timer.Reset(w.debounce)
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			c, ok := w.flush()
			if !ok {
				continue
			}
			w.logger.Debug("watcher change", zap.Int("paths", len(c.Paths)), zap.Bool("removed", c.Removed))
			if err := w.onChange(ctx, c); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("rebuild after change failed", zap.Error(err))
			}
		}
	}
}

// handleEvent records ev and reports whether it counts as a change.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)
	if w.single && path != w.root {
		return false
	}
	if !w.single && path != w.root && !inDir(w.root, path) {
		return false
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A removed directory may have held indexed files, so no extension filter.
		w.mark(path, true)
		return true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Lstat(path)
		if err != nil {
			return false
		}
		if info.IsDir() {
			if !w.single {
				if err := w.addTree(fw, path); err != nil {
					w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
			}
			// Files moved in with the directory produce no events of their own.
			w.mark(path, false)
			return true
		}
		if !matchExtension(path, w.extensions) {
			return false
		}
		w.mark(path, false)
		return true
	}
	return false
}

func (w *Watcher) mark(path string, removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = w.pending[path] || removed
}

// flush takes the pending batch.
func (w *Watcher) flush() (Change, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return Change{}, false
	}
	var c Change
	for path, removed := range w.pending {
		c.Paths = append(c.Paths, path)
		c.Removed = c.Removed || removed
	}
	sort.Strings(c.Paths)
	w.pending = make(map[string]bool)
	return c, true
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	return corpus.ExtensionAllowed(filepath.Ext(path), extensions)
}
