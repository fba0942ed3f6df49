package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/scout/pkg/logger"
)

const defaultDebounce = 100 * time.Millisecond

// IgnoreWatcher keeps the ignore list at a path current as the file changes.
// Readers always see a complete list: a file that fails to parse keeps the
// previous list in place.
type IgnoreWatcher struct {
	path     string
	debounce time.Duration
	log      logger.Logger
	current  atomic.Pointer[IgnoreList]
	reloads  atomic.Int64

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// WatchOption configures an IgnoreWatcher.
type WatchOption func(*IgnoreWatcher)

// WithDebounce sets how long to wait after a change before reloading.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *IgnoreWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for reloads and errors.
func WithWatchLogger(l logger.Logger) WatchOption {
	return func(w *IgnoreWatcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewIgnoreWatcher loads path once. Call Start to follow changes.
func NewIgnoreWatcher(path string, opts ...WatchOption) (*IgnoreWatcher, error) {
	w := &IgnoreWatcher{
		path:     path,
		debounce: defaultDebounce,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	l, err := LoadIgnoreList(path)
	if err != nil {
		return nil, err
	}
	w.current.Store(l)
	return w, nil
}

// Current returns the latest successfully loaded list.
func (w *IgnoreWatcher) Current() *IgnoreList { return w.current.Load() }

// Reloads counts successful reloads after the initial load.
func (w *IgnoreWatcher) Reloads() int64 { return w.reloads.Load() }

// Start watches the file's directory so that editors replacing the file are
// picked up too. It returns immediately.
func (w *IgnoreWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWatcherStarted
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = fw.Close()
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx)

	w.log.Info(ctx, "watching ignore list", logger.String("path", w.path))
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *IgnoreWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done, fw := w.doneCh, w.watcher
	w.mu.Unlock()

	<-done
	_ = fw.Close()
}

func (w *IgnoreWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	target := filepath.Clean(w.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(ctx, "ignore list watch error", logger.Error(err))
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *IgnoreWatcher) reload(ctx context.Context) {
	l, err := LoadIgnoreList(w.path)
	if err != nil {
		w.log.Warn(ctx, "keeping previous ignore list", logger.String("path", w.path), logger.Error(err))
		return
	}
	w.current.Store(l)
	w.reloads.Add(1)
	w.log.Info(ctx, "reloaded ignore list", logger.String("path", w.path), logger.Int("entries", l.Len()))
}
