// Package mgmt is the client side of the daemon's management interface:
// the socket transport, unary commands, and the event subscription.
package mgmt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/mulltray/mulltray/internal/buildinfo"
)

// DefaultTimeout bounds unary calls and the connect handshake.
const DefaultTimeout = 5 * time.Second

// Transport owns the single gRPC channel to the daemon's Unix socket.
type Transport struct {
	socketPath string
	timeout    time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *grpc.ClientConn
	lost      chan struct{}
	stopWatch context.CancelFunc
}

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport creates a disconnected transport for the socket at socketPath.
func NewTransport(socketPath string, opts ...Option) *Transport {
	t := &Transport{
		socketPath: socketPath,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SocketPath returns the daemon socket path.
func (t *Transport) SocketPath() string {
	return t.socketPath
}

// Connected reports whether a channel is currently held.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect opens the socket and negotiates the RPC channel. It fails with
// ErrUnavailable when the socket cannot be opened and ErrHandshake when
// the socket accepts but the channel never becomes ready.
func (t *Transport) Connect(ctx context.Context) error {
	if t.Connected() {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	sock, err := t.dial(dialCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_ = sock.Close()

	conn, err := grpc.NewClient("passthrough:///mullvad-daemon",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return t.dial(ctx)
		}),
		grpc.WithIdleTimeout(0),
		grpc.WithUserAgent(buildinfo.UserAgent()),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	if err := waitReady(dialCtx, conn); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	watchCtx, stop := context.WithCancel(context.Background())
	lost := make(chan struct{})

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		stop()
		_ = conn.Close()
		return nil
	}
	t.conn, t.lost, t.stopWatch = conn, lost, stop
	t.mu.Unlock()

	go watchHealth(watchCtx, conn, lost)

	t.logger.Debug("connected to daemon", zap.String("socket", t.socketPath))
	return nil
}

// Lost returns a channel that is closed once the current channel stops
// being ready. Without a channel the returned channel is already closed.
func (t *Transport) Lost() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lost == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.lost
}

// Invoke performs one request/response round trip bounded by the
// transport timeout.
func (t *Transport) Invoke(ctx context.Context, method string, req, resp proto.Message) error {
	conn := t.current()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		return classify(err)
	}
	return nil
}

// OpenStream starts a server-streaming call. The returned stream ends for
// good on the first receive error.
func (t *Transport) OpenStream(ctx context.Context, method string, req proto.Message) (*Stream, error) {
	conn := t.current()
	if conn == nil {
		return nil, fmt.Errorf("%w: not connected", ErrUnavailable)
	}

	ctx, cancel := context.WithCancel(ctx)
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, method)
	if err != nil {
		cancel()
		return nil, classify(err)
	}
	if err := cs.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		cancel()
		return nil, classify(err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, classify(err)
	}
	return &Stream{cs: cs, cancel: cancel}, nil
}

// Close releases the channel. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, stop := t.conn, t.stopWatch
	t.conn, t.lost, t.stopWatch = nil, nil, nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	stop()
	return conn.Close()
}

func (t *Transport) current() *grpc.ClientConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", t.socketPath)
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		s := conn.GetState()
		switch s {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("channel entered %s", s)
		}
		if !conn.WaitForStateChange(ctx, s) {
			return ctx.Err()
		}
	}
}

// watchHealth closes lost when conn leaves the Ready state or ctx ends.
func watchHealth(ctx context.Context, conn *grpc.ClientConn, lost chan struct{}) {
	defer close(lost)
	s := conn.GetState()
	for s == connectivity.Ready {
		if !conn.WaitForStateChange(ctx, s) {
			return
		}
		s = conn.GetState()
	}
}

// Stream is one server-streaming call.
type Stream struct {
	cs     grpc.ClientStream
	cancel context.CancelFunc
}

// Recv reads the next message into m. Every failure, including a clean
// end of stream, is reported as ErrStreamClosed.
func (s *Stream) Recv(m proto.Message) error {
	if err := s.cs.RecvMsg(m); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrStreamClosed
		}
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return nil
}

// Close cancels the call and releases its resources.
func (s *Stream) Close() {
	s.cancel()
}
