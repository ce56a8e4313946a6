// Package mgmttest runs an in-process management daemon on a Unix socket
// for tests.
package mgmttest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
)

// Service is the server interface for the management service.
type Service interface {
	ConnectTunnel(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	DisconnectTunnel(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	GetTunnelState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	EventsListen(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: mgmt.ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ConnectTunnel", Handler: connectTunnelHandler},
		{MethodName: "DisconnectTunnel", Handler: disconnectTunnelHandler},
		{MethodName: "GetTunnelState", Handler: getTunnelStateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "EventsListen", Handler: eventsListenHandler, ServerStreams: true},
	},
	Metadata: "management_interface.proto",
}

func connectTunnelHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(Service).ConnectTunnel(ctx, in)
}

func disconnectTunnelHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(Service).DisconnectTunnel(ctx, in)
}

func getTunnelStateHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(Service).GetTunnelState(ctx, in)
}

func eventsListenHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(Service).EventsListen(in, stream)
}

// Daemon is a fake tunnel daemon. Connect moves the tunnel to Connecting,
// Disconnect to Disconnected; tests drive everything else with SetState.
type Daemon struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string

	mu           sync.Mutex
	state        models.TunnelState
	statePayload *structpb.Struct
	commandErr   error
	hold         chan struct{}
	connects     int
	disconnects  int
	subs         map[int]chan *structpb.Struct
	nextSub      int
}

// Listen starts a daemon on socketPath with the given initial state.
func Listen(socketPath string, initial models.TunnelState) (*Daemon, error) {
	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "unix", socketPath)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		socketPath: socketPath,
		state:      initial,
		subs:       make(map[int]chan *structpb.Struct),
	}
	d.grpcServer.RegisterService(&serviceDesc, d)

	go func() { _ = d.grpcServer.Serve(listener) }()
	return d, nil
}

// Start runs a daemon for the duration of the test.
func Start(t testing.TB, socketPath string, initial models.TunnelState) *Daemon {
	t.Helper()
	d, err := Listen(socketPath, initial)
	if err != nil {
		t.Fatalf("failed to start fake daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

// SocketPath returns a fresh socket path short enough for sun_path.
func SocketPath(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mt")
	if err != nil {
		t.Fatalf("failed to create socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "daemon.sock")
}

// Stop drops every connection and removes the socket.
func (d *Daemon) Stop() {
	d.grpcServer.Stop()
	_ = os.Remove(d.socketPath)
}

// SetState changes the tunnel state and pushes it to subscribers.
func (d *Daemon) SetState(s models.TunnelState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.Emit(mgmt.EncodeEvent(mgmt.EventTunnelState, mgmt.EncodeTunnelState(s)))
}

// Emit pushes a raw event to subscribers.
func (d *Daemon) Emit(msg *structpb.Struct) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SetStatePayload makes GetTunnelState answer with p instead of the
// encoded state. Pass nil to restore normal answers.
func (d *Daemon) SetStatePayload(p *structpb.Struct) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statePayload = p
}

// FailCommands makes Connect and Disconnect return err. Pass nil to
// restore normal answers.
func (d *Daemon) FailCommands(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commandErr = err
}

// HoldCommands makes Connect and Disconnect block until release is called
// or the caller gives up. Calling release more than once is fine.
func (d *Daemon) HoldCommands() (release func()) {
	hold := make(chan struct{})
	d.mu.Lock()
	d.hold = hold
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.hold == hold {
				d.hold = nil
			}
			d.mu.Unlock()
			close(hold)
		})
	}
}

func (d *Daemon) waitHold(ctx context.Context) error {
	d.mu.Lock()
	hold := d.hold
	d.mu.Unlock()
	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calls returns how many Connect and Disconnect requests were served.
func (d *Daemon) Calls() (connects, disconnects int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects, d.disconnects
}

// Subscribers returns the number of open event streams.
func (d *Daemon) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// WaitSubscribers polls until at least n event streams are open.
func (d *Daemon) WaitSubscribers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Subscribers() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// ConnectTunnel implements Service.
func (d *Daemon) ConnectTunnel(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	if err := d.waitHold(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.commandErr != nil {
		err := d.commandErr
		d.mu.Unlock()
		return nil, err
	}
	if d.state.Phase == models.PhaseConnected || d.state.Phase == models.PhaseConnecting {
		d.mu.Unlock()
		return wrapperspb.Bool(false), nil
	}
	d.mu.Unlock()

	d.SetState(models.Connecting("", ""))
	return wrapperspb.Bool(true), nil
}

// DisconnectTunnel implements Service.
func (d *Daemon) DisconnectTunnel(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	d.mu.Lock()
	d.disconnects++
	d.mu.Unlock()
	if err := d.waitHold(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.commandErr != nil {
		err := d.commandErr
		d.mu.Unlock()
		return nil, err
	}
	if d.state.Phase == models.PhaseDisconnected {
		d.mu.Unlock()
		return wrapperspb.Bool(false), nil
	}
	d.mu.Unlock()

	d.SetState(models.Disconnected())
	return wrapperspb.Bool(true), nil
}

// GetTunnelState implements Service.
func (d *Daemon) GetTunnelState(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.statePayload != nil {
		return d.statePayload, nil
	}
	return mgmt.EncodeTunnelState(d.state), nil
}

// EventsListen implements Service.
func (d *Daemon) EventsListen(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch := make(chan *structpb.Struct, 64)
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case msg := <-ch:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
