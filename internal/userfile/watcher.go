package userfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/FocuswithJustin/obosync/core/cas"
	"github.com/FocuswithJustin/obosync/internal/logging"
)

// DefaultDebounce is how long a dropped file must stay quiet before it is
// handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called once per settled file.
type Handler func(ctx context.Context, path string)

// Watcher hands files dropped into a directory to a Handler. Only names
// matching Pattern are considered, and a file whose content has already
// been handled is skipped.
type Watcher struct {
	Dir      string
	Pattern  string
	Debounce time.Duration

	handler Handler
	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]time.Time

	seen map[string]string
}

// NewWatcher creates a watcher over dir. The pattern is a doublestar glob
// matched against base names, e.g. "*.{obo,json}".
func NewWatcher(dir, pattern string, handler Handler) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		Dir:      dir,
		Pattern:  pattern,
		Debounce: DefaultDebounce,
		handler:  handler,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		seen:     make(map[string]string),
	}, nil
}

// Matches reports whether a file name is picked up by the watcher.
func (w *Watcher) Matches(path string) bool {
	ok, err := doublestar.Match(w.Pattern, filepath.Base(path))
	return err == nil && ok
}

// Run watches until ctx is cancelled. Matching files already present are
// handled first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.Dir); err != nil {
		return err
	}

	existing, err := doublestar.Glob(os.DirFS(w.Dir), w.Pattern)
	if err != nil {
		return err
	}
	for _, name := range existing {
		w.handle(ctx, filepath.Join(w.Dir, name))
	}

	logging.Info("watching for uploads", "dir", w.Dir, "pattern", w.Pattern)

	if w.Debounce <= 0 {
		w.Debounce = DefaultDebounce
	}
	ticker := time.NewTicker(tickInterval(w.Debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", "error", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// tickInterval polls twice per debounce window, never faster than 1ms.
func tickInterval(debounce time.Duration) time.Duration {
	return max(debounce/2, time.Millisecond)
}

// flush handles every pending file that has been quiet for Debounce.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.pendingMu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// removed before it settled
		return
	}
	hash := cas.Hash(data)
	if w.seen[path] == hash {
		return
	}
	w.seen[path] = hash
	w.handler(ctx, path)
}
