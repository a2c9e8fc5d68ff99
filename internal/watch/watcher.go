// Package watch feeds a directory of object documents into the engine.
//
// Each *.json file in the directory holds one content object (see
// content.Decode). Writing a file handles the object as an update, which
// creates it in the catalog on first sight. Removing or renaming a file away
// handles a delete for the object the file last held.
//
// Filesystem events are debounced per file, then queued. One worker drains
// the queue, so each change is handled end to end before the next starts.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/engine"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 100 * time.Millisecond

// Handler applies one change. *engine.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, obj content.Object, action engine.Action) engine.Result
}

// ResultFunc observes every handled job.
type ResultFunc func(j Job, res engine.Result)

// Watcher watches one directory.
type Watcher struct {
	dir      string
	handler  Handler
	logger   *slog.Logger
	debounce time.Duration
	onResult ResultFunc

	queue *jobQueue
	ready chan struct{}

	mu      sync.Mutex
	known   map[string]content.Object // path -> last object seen there
	pending map[string]*time.Timer
	stopped bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the per-file quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithResultFunc registers fn to be called after each job is handled.
func WithResultFunc(fn ResultFunc) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New creates a watcher for dir.
func New(dir string, h Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		handler:  h,
		debounce: DefaultDebounce,
		queue:    newJobQueue(),
		ready:    make(chan struct{}),
		known:    make(map[string]content.Object),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run watches until ctx is done. Files already present are indexed, not
// pushed, so their later removal can be handled as a delete.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.index(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()

	w.logger.Info("watching directory", "dir", w.dir, "known", w.knownCount())
	close(w.ready)

	err = w.loop(ctx, fw)

	w.stop()
	w.queue.Close()
	wg.Wait()

	if n := w.queue.Len(); n > 0 {
		w.logger.Warn("dropped queued changes on shutdown", "count", n)
	}
	return err
}

// Ready is closed once the directory is indexed and being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}
			w.logger.Debug("event received", "name", event.Name, "op", event.Op.String())
			if !isDocument(event.Name) {
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// index records the objects of files already in the directory.
func (w *Watcher) index() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		node, err := content.Load(path)
		if err != nil {
			w.logger.Warn("skipping unreadable document", "path", path, "error", err)
			continue
		}
		w.mu.Lock()
		w.known[path] = node
		w.mu.Unlock()
	}
	return nil
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.settle(path) })
}

// settle looks at path once it has gone quiet and queues the resulting job.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	node, err := content.Load(path)
	switch {
	case err == nil:
		w.mu.Lock()
		prev, had := w.known[path]
		w.known[path] = node
		w.mu.Unlock()

		// The file now holds a different object: the old one is gone.
		if had && (prev.Type() != node.Type() || prev.ID() != node.ID()) {
			w.queue.Enqueue(Job{Path: path, Object: prev, Action: engine.ActionDelete})
		}
		w.queue.Enqueue(Job{Path: path, Object: node, Action: engine.ActionUpdate})

	case errors.Is(err, fs.ErrNotExist):
		w.mu.Lock()
		prev, had := w.known[path]
		delete(w.known, path)
		w.mu.Unlock()

		if !had {
			w.logger.Debug("removed file was never seen", "path", path)
			return
		}
		w.queue.Enqueue(Job{Path: path, Object: prev, Action: engine.ActionDelete})

	default:
		w.logger.Warn("skipping unreadable document", "path", path, "error", err)
	}
}

// work handles queued jobs one at a time until the queue closes or ctx ends.
func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-w.queue.Wait():
			for {
				if ctx.Err() != nil {
					return
				}
				j, ok := w.queue.TryDequeue()
				if !ok {
					break
				}
				res := w.handler.Handle(ctx, j.Object, j.Action)
				if w.onResult != nil {
					w.onResult(j, res)
				}
			}
			if !open {
				return
			}
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) knownCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.known)
}

func isDocument(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}
