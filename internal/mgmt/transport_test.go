package mgmt_test

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/mgmt/mgmttest"
	"github.com/mulltray/mulltray/internal/models"
)

func newClient(t *testing.T, socketPath string) *mgmt.Client {
	t.Helper()
	logger := zaptest.NewLogger(t)
	transport := mgmt.NewTransport(socketPath, mgmt.WithTimeout(2*time.Second), mgmt.WithLogger(logger))
	t.Cleanup(func() { _ = transport.Close() })
	return mgmt.NewClient(transport, logger, nil)
}

func connect(t *testing.T, c *mgmt.Client) {
	t.Helper()
	if err := c.Transport().Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

type nextResult struct {
	state models.TunnelState
	err   error
}

func nextWithin(t *testing.T, sub *mgmt.Subscription, d time.Duration) nextResult {
	t.Helper()
	ch := make(chan nextResult, 1)
	go func() {
		s, err := sub.Next()
		ch <- nextResult{s, err}
	}()
	select {
	case r := <-ch:
		return r
	case <-time.After(d):
		t.Fatalf("Next did not return within %v", d)
		return nextResult{}
	}
}

func TestConnectMissingSocket(t *testing.T) {
	c := newClient(t, filepath.Join(t.TempDir(), "absent.sock"))

	err := c.Transport().Connect(context.Background())
	if !errors.Is(err, mgmt.ErrUnavailable) {
		t.Fatalf("Connect() error = %v, want ErrUnavailable", err)
	}
	if !mgmt.IsTransportError(err) {
		t.Error("missing socket should be a transport error")
	}
	if c.Transport().Connected() {
		t.Error("transport should not hold a channel after a failed connect")
	}
}

func TestConnectHandshakeMismatch(t *testing.T) {
	path := mgmttest.SocketPath(t)
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n"))
			_ = conn.Close()
		}
	}()

	c := newClient(t, path)
	err = c.Transport().Connect(context.Background())
	if !errors.Is(err, mgmt.ErrHandshake) {
		t.Fatalf("Connect() error = %v, want ErrHandshake", err)
	}
}

func TestUnaryWithoutConnection(t *testing.T) {
	c := newClient(t, mgmttest.SocketPath(t))

	if _, err := c.GetTunnelState(context.Background()); !errors.Is(err, mgmt.ErrUnavailable) {
		t.Errorf("GetTunnelState() error = %v, want ErrUnavailable", err)
	}
	if _, err := c.ConnectTunnel(context.Background()); !errors.Is(err, mgmt.ErrUnavailable) {
		t.Errorf("ConnectTunnel() error = %v, want ErrUnavailable", err)
	}
	if _, err := c.Subscribe(context.Background()); !errors.Is(err, mgmt.ErrUnavailable) {
		t.Errorf("Subscribe() error = %v, want ErrUnavailable", err)
	}
}

func TestGetTunnelState(t *testing.T) {
	path := mgmttest.SocketPath(t)
	since := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	want := models.Connected("se-got-wg-001", "Gothenburg, Sweden", since)
	mgmttest.Start(t, path, want)

	c := newClient(t, path)
	connect(t, c)

	got, err := c.GetTunnelState(context.Background())
	if err != nil {
		t.Fatalf("GetTunnelState: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("GetTunnelState() = %v, want %v", got, want)
	}
}

func TestGetTunnelStateMalformed(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())
	d.SetStatePayload(&structpb.Struct{Fields: map[string]*structpb.Value{
		"state": structpb.NewNumberValue(2),
	}})

	c := newClient(t, path)
	connect(t, c)

	_, err := c.GetTunnelState(context.Background())
	if !errors.Is(err, mgmt.ErrMalformed) {
		t.Fatalf("GetTunnelState() error = %v, want ErrMalformed", err)
	}
	if mgmt.IsTransportError(err) {
		t.Error("malformed payload must not be a transport error")
	}
}

func TestConnectTunnelAcknowledges(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())

	c := newClient(t, path)
	connect(t, c)

	changed, err := c.ConnectTunnel(context.Background())
	if err != nil || !changed {
		t.Fatalf("first ConnectTunnel() = %v, %v; want true, nil", changed, err)
	}
	changed, err = c.ConnectTunnel(context.Background())
	if err != nil || changed {
		t.Fatalf("second ConnectTunnel() = %v, %v; want false, nil", changed, err)
	}
	if connects, _ := d.Calls(); connects != 2 {
		t.Errorf("daemon saw %d connects, want 2", connects)
	}
}

func TestCommandRejected(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())
	d.FailCommands(status.Error(codes.FailedPrecondition, "account expired"))

	c := newClient(t, path)
	connect(t, c)

	_, err := c.ConnectTunnel(context.Background())
	var rpcErr *mgmt.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("ConnectTunnel() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != codes.FailedPrecondition || rpcErr.Message != "account expired" {
		t.Errorf("RPCError = %+v", rpcErr)
	}
	if mgmt.IsTransportError(err) {
		t.Error("a rejected command must not be a transport error")
	}
}

func TestCommandTimesOut(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())
	release := d.HoldCommands()
	t.Cleanup(release)

	logger := zaptest.NewLogger(t)
	transport := mgmt.NewTransport(path, mgmt.WithTimeout(200*time.Millisecond), mgmt.WithLogger(logger))
	t.Cleanup(func() { _ = transport.Close() })
	c := mgmt.NewClient(transport, logger, nil)
	connect(t, c)

	start := time.Now()
	_, err := c.ConnectTunnel(context.Background())
	if !errors.Is(err, mgmt.ErrTimeout) {
		t.Fatalf("ConnectTunnel() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ConnectTunnel() took %v, want about the 200ms timeout", elapsed)
	}
	if mgmt.IsTransportError(err) {
		t.Error("a timed out request must not tear down the connection")
	}
	var rpcErr *mgmt.RPCError
	if errors.As(err, &rpcErr) {
		t.Errorf("timeout classified as rejection: %v", rpcErr)
	}

	// The channel stays usable once the daemon answers again.
	release()
	if _, err := c.GetTunnelState(context.Background()); err != nil {
		t.Errorf("GetTunnelState() after timeout: %v", err)
	}
}

func TestSubscriptionSkipsForeignAndMalformedEvents(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())

	c := newClient(t, path)
	connect(t, c)

	sub, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if !d.WaitSubscribers(1, 2*time.Second) {
		t.Fatal("daemon never saw the subscription")
	}

	d.Emit(mgmt.EncodeEvent(mgmt.EventSettings, nil))
	d.Emit(mgmt.EncodeEvent("firmware", nil))
	d.Emit(mgmt.EncodeEvent(mgmt.EventTunnelState, &structpb.Struct{Fields: map[string]*structpb.Value{
		"state": structpb.NewStringValue("sideways"),
	}}))
	want := models.Connecting("de-fra-wg-102", "Frankfurt, Germany")
	d.SetState(want)

	r := nextWithin(t, sub, 2*time.Second)
	if r.err != nil {
		t.Fatalf("Next: %v", r.err)
	}
	if !r.state.Equal(want) {
		t.Errorf("Next() = %v, want %v", r.state, want)
	}
}

func TestSubscriptionEndsWhenDaemonStops(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())

	c := newClient(t, path)
	connect(t, c)
	lost := c.Transport().Lost()

	sub, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if !d.WaitSubscribers(1, 2*time.Second) {
		t.Fatal("daemon never saw the subscription")
	}

	d.Stop()

	r := nextWithin(t, sub, 2*time.Second)
	if !errors.Is(r.err, mgmt.ErrStreamClosed) {
		t.Fatalf("Next() error = %v, want ErrStreamClosed", r.err)
	}
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Error("Lost() was not closed after the daemon went away")
	}
}

func TestSubscriptionCloseReleasesStream(t *testing.T) {
	path := mgmttest.SocketPath(t)
	d := mgmttest.Start(t, path, models.Disconnected())

	c := newClient(t, path)
	connect(t, c)

	sub, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !d.WaitSubscribers(1, 2*time.Second) {
		t.Fatal("daemon never saw the subscription")
	}

	sub.Close()
	sub.Close()

	r := nextWithin(t, sub, 2*time.Second)
	if !errors.Is(r.err, mgmt.ErrStreamClosed) {
		t.Fatalf("Next() after Close error = %v, want ErrStreamClosed", r.err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Subscribers() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := d.Subscribers(); n != 0 {
		t.Errorf("daemon still has %d subscribers after Close", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := mgmttest.SocketPath(t)
	mgmttest.Start(t, path, models.Disconnected())

	c := newClient(t, path)
	connect(t, c)

	if err := c.Transport().Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Transport().Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-c.Transport().Lost():
	default:
		t.Error("Lost() should be closed without a channel")
	}
	if _, err := c.GetTunnelState(context.Background()); !errors.Is(err, mgmt.ErrUnavailable) {
		t.Errorf("GetTunnelState() after Close error = %v, want ErrUnavailable", err)
	}
}
