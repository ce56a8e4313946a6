// Package supervisor keeps the daemon connection alive. It connects,
// resyncs the tunnel state, subscribes to events and, whenever any of
// that fails, backs off and starts over.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
)

// Default backoff bounds.
const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// ErrConnectionLost is reported when the transport leaves the ready state
// while the event stream is still open.
var ErrConnectionLost = errors.New("daemon connection lost")

// Phase is the supervisor's position in its reconnect cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseLive
	PhaseBackoff
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseLive:
		return "live"
	case PhaseBackoff:
		return "backoff"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Daemon is the connection the supervisor drives.
type Daemon interface {
	Connect(ctx context.Context) error
	Lost() <-chan struct{}
	Close() error
	GetTunnelState(ctx context.Context) (models.TunnelState, error)
	Subscribe(ctx context.Context) (Events, error)
}

// Events is an open event subscription.
type Events interface {
	Next() (models.TunnelState, error)
	Close()
}

// Sink receives everything the supervisor learns, tagged with the epoch of
// the connection it came from. Epochs grow by one per established
// connection.
type Sink interface {
	Resynced(epoch uint64, s models.TunnelState)
	Event(epoch uint64, s models.TunnelState)
	Lost(epoch uint64, err error)
}

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Metrics

	// After replaces time.After, for tests.
	After func(time.Duration) <-chan time.Time
}

// Supervisor runs the reconnect cycle on a single goroutine, so at most
// one connect attempt is in flight.
type Supervisor struct {
	daemon  Daemon
	sink    Sink
	initial time.Duration
	max     time.Duration
	after   func(time.Duration) <-chan time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	phase atomic.Int32
	epoch uint64
	wake  chan struct{}
}

// New creates a supervisor for d reporting to sink.
func New(d Daemon, sink Sink, opts Options) *Supervisor {
	s := &Supervisor{
		daemon:  d,
		sink:    sink,
		initial: opts.InitialBackoff,
		max:     opts.MaxBackoff,
		after:   opts.After,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		wake:    make(chan struct{}, 1),
	}
	if s.initial <= 0 {
		s.initial = DefaultInitialBackoff
	}
	if s.max <= 0 {
		s.max = DefaultMaxBackoff
	}
	if s.max < s.initial {
		s.max = s.initial
	}
	if s.after == nil {
		s.after = time.After
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Phase returns the current phase.
func (s *Supervisor) Phase() Phase {
	return Phase(s.phase.Load())
}

// Wake cuts the current backoff short, or the next one when called while
// an attempt is running. It never blocks; wake-ups do not accumulate.
func (s *Supervisor) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the cycle until ctx is cancelled. It always returns nil;
// every daemon failure is retried.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setPhase(PhaseStopped)
	defer s.daemon.Close()

	backoff := s.initial
	for {
		if ctx.Err() != nil {
			return nil
		}

		// A wake-up from before this attempt is already served by it. One
		// that arrives during the attempt stays pending and ends the
		// following backoff at once.
		select {
		case <-s.wake:
		default:
		}
		s.setPhase(PhaseConnecting)
		s.metrics.ConnectAttempt()
		live, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if live {
			backoff = s.initial
		}

		s.logger.Warn("daemon connection failed, retrying",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)
		s.setPhase(PhaseBackoff)
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(backoff):
		case <-s.wake:
			s.logger.Debug("backoff cut short")
		}

		backoff *= 2
		if backoff > s.max {
			backoff = s.max
		}
	}
}

// session runs one connect/resync/subscribe attempt and, if it reaches
// Live, pumps events until the connection ends. live reports whether Live
// was reached.
func (s *Supervisor) session(ctx context.Context) (live bool, err error) {
	if err := s.daemon.Connect(ctx); err != nil {
		return false, err
	}
	s.epoch++
	epoch := s.epoch
	logger := s.logger.With(zap.Uint64("epoch", epoch))

	fail := func(err error) error {
		_ = s.daemon.Close()
		if ctx.Err() == nil {
			s.sink.Lost(epoch, err)
		}
		return err
	}

	st, err := s.daemon.GetTunnelState(ctx)
	if err != nil {
		return false, fail(err)
	}
	s.sink.Resynced(epoch, st)

	events, err := s.daemon.Subscribe(ctx)
	if err != nil {
		return false, fail(err)
	}

	s.setPhase(PhaseLive)
	logger.Info("daemon connection live", zap.Stringer("state", st))

	errc := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			next, err := events.Next()
			if err != nil {
				errc <- err
				return
			}
			s.metrics.Event("received")
			s.sink.Event(epoch, next)
		}
	}()

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.daemon.Lost():
		err = ErrConnectionLost
	case err = <-errc:
	}

	events.Close()
	wg.Wait()
	return true, fail(err)
}

func (s *Supervisor) setPhase(p Phase) {
	s.phase.Store(int32(p))
	s.metrics.SetPhase(p.String())
}

// ForClient adapts a management client to the Daemon interface.
func ForClient(c *mgmt.Client) Daemon {
	return clientDaemon{c}
}

type clientDaemon struct {
	*mgmt.Client
}

func (d clientDaemon) Connect(ctx context.Context) error {
	return d.Transport().Connect(ctx)
}

func (d clientDaemon) Lost() <-chan struct{} {
	return d.Transport().Lost()
}

func (d clientDaemon) Close() error {
	return d.Transport().Close()
}

func (d clientDaemon) Subscribe(ctx context.Context) (Events, error) {
	sub, err := d.Client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
