// Package inbox watches a directory for new recordings and hands each one
// to a handler once it has finished arriving.
//
// A file is considered complete when its size has not changed for the
// settle period. Every path is handled at most once per [Watcher]; writes
// to a file that was already handled are ignored.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrWong99/audiojournal/internal/batch"
	"github.com/MrWong99/audiojournal/internal/observe"
)

const (
	defaultSettle = 2 * time.Second
	minPoll       = 20 * time.Millisecond
)

// Handler processes one complete recording. A returned error is logged; the
// file is not retried.
type Handler func(ctx context.Context, path string) error

// Option is a functional option for configuring a [Watcher].
type Option func(*Watcher)

// WithPattern sets the doublestar pattern whose file part selects
// recordings. Default: [batch.DefaultPattern].
func WithPattern(p string) Option {
	return func(w *Watcher) {
		if p != "" {
			w.pattern = p
		}
	}
}

// WithSettle sets how long a file size must stay unchanged before the file
// is handled. Default: 2s.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithExisting controls whether files already in the directory when Run
// starts are handled. Default: true.
func WithExisting(on bool) Option {
	return func(w *Watcher) { w.existing = on }
}

// Watcher watches one directory. It is not recursive.
type Watcher struct {
	dir      string
	handle   Handler
	pattern  string
	settle   time.Duration
	existing bool

	mu      sync.Mutex
	pending map[string]*pendingFile
	seen    map[string]struct{}
}

type pendingFile struct {
	size    int64
	changed time.Time
}

// New returns a Watcher for dir that calls h for each recording.
func New(dir string, h Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		handle:   h,
		pattern:  batch.DefaultPattern,
		settle:   defaultSettle,
		existing: true,
		pending:  make(map[string]*pendingFile),
		seen:     make(map[string]struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Handled returns the paths handed to the handler so far, sorted.
func (w *Watcher) Handled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.seen))
	for p := range w.seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Run watches until ctx is cancelled. Recordings are handled one at a time
// in arrival order. Run returns nil on cancellation after the handler in
// progress has returned.
func (w *Watcher) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := observe.Logger(ctx).With(slog.String("inbox", w.dir))

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}

	if w.existing {
		if err := w.scan(); err != nil {
			return err
		}
	}

	ready := make(chan string, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range ready {
			w.dispatch(ctx, path, log)
		}
	}()
	defer wg.Wait()
	defer close(ready)

	tick := time.NewTicker(max(w.settle/4, minPoll))
	defer tick.Stop()

	log.Info("watching inbox", slog.Duration("settle", w.settle))
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("inbox: watcher events channel closed")
			}
			w.onEvent(ev)

		case werr, ok := <-fw.Errors:
			if !ok {
				return errors.New("inbox: watcher errors channel closed")
			}
			log.Error("inbox watcher error", slog.Any("err", werr))

		case now := <-tick.C:
			for _, p := range w.settled(now) {
				select {
				case ready <- p:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// scan queues the matching files already present in the directory.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.track(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) onEvent(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.track(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
	}
}

// track starts or restarts the settle timer of path.
func (w *Watcher) track(path string) {
	if !batch.Matches(w.pattern, path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, done := w.seen[path]; done {
		return
	}
	if pf, ok := w.pending[path]; ok && pf.size == info.Size() {
		return
	}
	w.pending[path] = &pendingFile{size: info.Size(), changed: time.Now()}
}

// settled moves the files whose size stayed put for the settle period from
// pending to seen and returns them sorted.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, pf := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != pf.size {
			pf.size = info.Size()
			pf.changed = now
			continue
		}
		if now.Sub(pf.changed) < w.settle {
			continue
		}
		delete(w.pending, path)
		w.seen[path] = struct{}{}
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) dispatch(ctx context.Context, path string, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	log.Info("recording arrived", slog.String("path", path))
	if err := w.handle(ctx, path); err != nil {
		log.Error("recording failed", slog.String("path", path), slog.Any("err", err))
	}
}
