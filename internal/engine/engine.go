// Package engine is the single context that owns the tunnel state. Every
// daemon response, stream event and menu click becomes a message on one
// bounded inbox, and Run applies them in arrival order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/tray"
)

// InboxSize bounds the number of queued messages.
const InboxSize = 64

// Commander sends tunnel commands to the daemon.
type Commander interface {
	ConnectTunnel(ctx context.Context) (changed bool, err error)
	DisconnectTunnel(ctx context.Context) (changed bool, err error)
}

// Options configures an Engine.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// OnQuit runs on the engine goroutine when the Quit entry is chosen.
	OnQuit func()
}

type kind int

const (
	kindResynced kind = iota
	kindEvent
	kindLost
	kindCommand
	kindResult
)

type message struct {
	kind    kind
	epoch   uint64
	state   models.TunnelState
	err     error
	cmd     models.Command
	seq     uint64
	changed bool
}

// Engine owns the Reconciler and the Renderer. Only Run touches them.
type Engine struct {
	reconciler *state.Reconciler
	renderer   *tray.Renderer
	commander  Commander
	logger     *zap.Logger
	metrics    *metrics.Metrics
	onQuit     func()

	inbox chan message
	done  chan struct{}
	epoch uint64

	mu       sync.RWMutex
	snapshot state.Snapshot
}

// New creates an engine that sends commands through c and renders to host.
func New(c Commander, host tray.Host, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		reconciler: state.New(),
		renderer:   tray.NewRenderer(host),
		commander:  c,
		logger:     logger,
		metrics:    opts.Metrics,
		onQuit:     opts.OnQuit,
		inbox:      make(chan message, InboxSize),
		done:       make(chan struct{}),
	}
}

// Snapshot returns the most recently accepted snapshot. It is safe to call
// from any goroutine.
func (e *Engine) Snapshot() state.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Run processes the inbox until ctx is cancelled. In-flight commands are
// cancelled with ctx and their results are discarded.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	e.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-e.inbox:
			e.handle(ctx, m)
		}
	}
}

// Dispatch queues a menu command. It never blocks; when the inbox is full
// the click is dropped.
func (e *Engine) Dispatch(cmd models.Command) {
	select {
	case e.inbox <- message{kind: kindCommand, cmd: cmd}:
	default:
		e.logger.Warn("inbox full, dropping command", zap.Stringer("command", cmd))
	}
}

// Resynced reports a fresh GetTunnelState response on connection epoch.
func (e *Engine) Resynced(epoch uint64, s models.TunnelState) {
	e.post(message{kind: kindResynced, epoch: epoch, state: s})
}

// Event reports a tunnel state pushed by the event stream.
func (e *Engine) Event(epoch uint64, s models.TunnelState) {
	e.post(message{kind: kindEvent, epoch: epoch, state: s})
}

// Lost reports that the connection with the given epoch is gone.
func (e *Engine) Lost(epoch uint64, err error) {
	e.post(message{kind: kindLost, epoch: epoch, err: err})
}

func (e *Engine) post(m message) {
	select {
	case e.inbox <- m:
	case <-e.done:
	}
}

func (e *Engine) handle(ctx context.Context, m message) {
	var notice string
	switch m.kind {
	case kindResynced:
		if m.epoch < e.epoch {
			e.metrics.Event("stale")
			return
		}
		e.epoch = m.epoch
		if err := e.reconciler.Resync(m.state); err != nil {
			e.logger.Warn("dropping tunnel state", zap.Error(err))
			return
		}
		e.logger.Info("tunnel state resynced", zap.Uint64("epoch", m.epoch), zap.Stringer("state", m.state))

	case kindEvent:
		if m.epoch != e.epoch {
			e.metrics.Event("stale")
			return
		}
		accepted, err := e.reconciler.Observe(m.state)
		if err != nil {
			e.logger.Warn("dropping tunnel state event", zap.Error(err))
			e.metrics.Event("invalid")
			return
		}
		if !accepted {
			e.metrics.Event("ignored")
			return
		}
		e.metrics.Event("accepted")
		e.logger.Debug("tunnel state changed", zap.Stringer("state", m.state))

	case kindLost:
		if m.epoch != e.epoch {
			return
		}
		e.logger.Info("daemon connection lost, state unknown", zap.Error(m.err))
		e.reconciler.Invalidate()

	case kindCommand:
		if m.cmd == models.CommandQuit {
			if e.onQuit != nil {
				e.onQuit()
			}
			return
		}
		seq, send := e.reconciler.Begin(m.cmd)
		if !send {
			e.logger.Debug("command not sent", zap.Stringer("command", m.cmd))
			e.metrics.Command(m.cmd.String(), "skipped")
			return
		}
		go e.send(ctx, m.cmd, seq)

	case kindResult:
		notice = e.result(m)
	}

	e.render()
	// Hosts may show notices in the tooltip, so the notice goes out after
	// the reverted model or the render would overwrite it.
	if notice != "" {
		e.renderer.Notify(notice)
	}
}

func (e *Engine) send(ctx context.Context, cmd models.Command, seq uint64) {
	var (
		changed bool
		err     error
	)
	switch cmd {
	case models.CommandConnect:
		changed, err = e.commander.ConnectTunnel(ctx)
	case models.CommandDisconnect:
		changed, err = e.commander.DisconnectTunnel(ctx)
	default:
		return
	}
	if ctx.Err() != nil {
		return
	}
	e.post(message{kind: kindResult, cmd: cmd, seq: seq, changed: changed, err: err})
}

// result applies a command outcome and returns the notice to show, if any.
func (e *Engine) result(m message) (notice string) {
	if m.err == nil && m.changed {
		return ""
	}

	if m.err != nil {
		e.logger.Warn("command failed", zap.Stringer("command", m.cmd), zap.Error(m.err))
		var rpcErr *mgmt.RPCError
		if errors.As(m.err, &rpcErr) {
			notice = fmt.Sprintf("%s failed: %s", m.cmd, rpcErr.Message)
		}
	} else {
		e.logger.Debug("daemon reported no change", zap.Stringer("command", m.cmd))
	}

	if e.reconciler.Revert(m.seq) {
		e.logger.Debug("reverted provisional state", zap.Uint64("seq", m.seq))
	}
	return notice
}

func (e *Engine) render() {
	snap := e.reconciler.Snapshot()
	e.mu.Lock()
	e.snapshot = snap
	e.mu.Unlock()

	e.metrics.StateAccepted(snap.Seq)
	e.renderer.Render(tray.Present(snap))
}
