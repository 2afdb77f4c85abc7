package events

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherClosed is returned when Start is called on a closed Watcher.
var ErrWatcherClosed = errors.New("events: watcher is closed")

// DefaultDebounce coalesces bursts of writes to the same session file.
const DefaultDebounce = 150 * time.Millisecond

// SessionHandler receives the ids of sessions whose event files changed.
type SessionHandler func(sessionIDs []string)

// Watcher tails the events directory and reports changed sessions.
type Watcher struct {
	dir      string
	handler  SessionHandler
	debounce time.Duration
	logger   *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func NewWatcher(dir string, handler SessionHandler, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   logger,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The directory is created if missing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.fsw != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.run()
	w.logger.Info("events watcher started", zap.String("dir", w.dir))
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			id := SessionIDFromPath(filepath.Clean(ev.Name))
			if id == "" {
				continue
			}
			w.enqueue(id)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("events watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) enqueue(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[id] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(ids)
	w.handler(ids)
}

// Close stops the watcher and waits for its goroutine to exit. Pending
// changes that have not been flushed are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	fsw := w.fsw
	close(w.done)
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	w.wg.Wait()
	return err
}
