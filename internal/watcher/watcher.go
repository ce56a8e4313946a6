// Package watcher notices the daemon socket being created, so a pending
// reconnect backoff can be cut short.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the socket must stay quiet before the
// callback fires.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches the directory holding the daemon socket.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	socketPath string
	onAppear   func()
	logger     *zap.Logger
	debounce   time.Duration

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a watcher that calls onAppear whenever socketPath is
// created or replaced.
func New(socketPath string, onAppear func(), logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		fsWatcher:  fsWatcher,
		socketPath: filepath.Clean(socketPath),
		onAppear:   onAppear,
		logger:     logger,
		debounce:   DefaultDebounce,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching. The socket's directory must exist.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.socketPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.logger.Debug("watching socket directory", zap.String("dir", dir))

	go w.processEvents()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.socketPath {
		return
	}
	// A daemon restart usually removes and recreates the socket; only the
	// creation matters.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("socket changed", zap.Stringer("op", event.Op))

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Info("daemon socket appeared", zap.String("path", w.socketPath))
		w.onAppear()
	})
}
