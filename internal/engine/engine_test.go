package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"

	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/tray"
)

type reply struct {
	changed bool
	err     error
}

type fakeCommander struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	replies     map[models.Command]reply
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{replies: map[models.Command]reply{
		models.CommandConnect:    {changed: true},
		models.CommandDisconnect: {changed: true},
	}}
}

func (c *fakeCommander) reply(cmd models.Command, r reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[cmd] = r
}

func (c *fakeCommander) calls() (connects, disconnects int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.disconnects
}

func (c *fakeCommander) ConnectTunnel(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	r := c.replies[models.CommandConnect]
	return r.changed, r.err
}

func (c *fakeCommander) DisconnectTunnel(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	r := c.replies[models.CommandDisconnect]
	return r.changed, r.err
}

type fakeHost struct {
	mu       sync.Mutex
	icon     tray.Icon
	title    string
	entries  []tray.MenuEntry
	messages []string
}

func (h *fakeHost) SetIcon(icon tray.Icon) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.icon = icon
}

func (h *fakeHost) SetTooltip(title string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.title = title
}

func (h *fakeHost) SetMenu(entries []tray.MenuEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = entries
}

func (h *fakeHost) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func (h *fakeHost) model() tray.Model {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tray.Model{Icon: h.icon, Title: h.title, Entries: h.entries}
}

func (h *fakeHost) notified() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

// tooltipHost shows notices in the tooltip like the systray host does.
type tooltipHost struct {
	fakeHost
}

func (h *tooltipHost) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.title = message
	h.messages = append(h.messages, message)
}

func waitNotified(t *testing.T, notified func() []string, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := notified()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d notifications, want %d", len(msgs), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func startEngine(t *testing.T, c Commander, opts Options) (*Engine, *fakeHost) {
	t.Helper()
	host := &fakeHost{}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	e := New(c, host, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, host
}

// waitFor polls the engine until cond holds for its snapshot.
func waitFor(t *testing.T, e *Engine, what string, cond func(state.Snapshot) bool) state.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := e.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; snapshot %+v", what, snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func phaseIs(p models.TunnelPhase, provisional bool) func(state.Snapshot) bool {
	return func(s state.Snapshot) bool {
		return s.Known && s.State.Phase == p && s.Provisional == provisional
	}
}

func waitRendered(t *testing.T, e *Engine, host *fakeHost) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		want := tray.Present(e.Snapshot())
		if host.model().Equal(want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("host shows %+v, want %+v", host.model(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStartsUnknown(t *testing.T) {
	e, host := startEngine(t, newFakeCommander(), Options{})
	waitRendered(t, e, host)
	if got := host.model().Icon; got != tray.IconUnknown {
		t.Errorf("Icon = %q, want unknown", got)
	}
}

func TestDisconnectWhileConnecting(t *testing.T) {
	cmd := newFakeCommander()
	e, host := startEngine(t, cmd, Options{})

	e.Resynced(1, models.Disconnected())
	waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))

	e.Dispatch(models.CommandConnect)
	waitFor(t, e, "provisional connecting", phaseIs(models.PhaseConnecting, true))

	e.Event(1, models.Connecting("se-got-wg-001", "Gothenburg, Sweden"))
	waitFor(t, e, "connecting", phaseIs(models.PhaseConnecting, false))

	e.Dispatch(models.CommandDisconnect)
	waitFor(t, e, "provisional disconnecting", phaseIs(models.PhaseDisconnecting, true))

	e.Event(1, models.Disconnected())
	waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))
	waitRendered(t, e, host)

	if !host.model().Enabled(models.CommandConnect) {
		t.Error("Connect should be enabled after disconnecting")
	}
	connects, disconnects := cmd.calls()
	if connects != 1 || disconnects != 1 {
		t.Errorf("calls = %d connects, %d disconnects; want 1, 1", connects, disconnects)
	}
}

func TestConnectWhileConnectedIsNotSent(t *testing.T) {
	cmd := newFakeCommander()
	e, _ := startEngine(t, cmd, Options{})

	e.Resynced(1, models.Connected("se-got-wg-001", "", time.Unix(100, 0)))
	before := waitFor(t, e, "connected", phaseIs(models.PhaseConnected, false))

	e.Dispatch(models.CommandConnect)
	e.Dispatch(models.CommandDisconnect)
	waitFor(t, e, "provisional disconnecting", phaseIs(models.PhaseDisconnecting, true))

	connects, _ := cmd.calls()
	if connects != 0 {
		t.Errorf("ConnectTunnel called %d times while connected", connects)
	}
	if after := e.Snapshot(); after.Seq != before.Seq+1 {
		t.Errorf("seq = %d, want %d (only the disconnect transition)", after.Seq, before.Seq+1)
	}
}

func TestCommandsRefusedWhileUnknown(t *testing.T) {
	cmd := newFakeCommander()
	e, host := startEngine(t, cmd, Options{})

	e.Dispatch(models.CommandConnect)
	e.Resynced(1, models.Disconnected())
	waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))
	waitRendered(t, e, host)

	if connects, _ := cmd.calls(); connects != 0 {
		t.Errorf("ConnectTunnel called %d times while unknown", connects)
	}
}

func TestCommandFailureReverts(t *testing.T) {
	tests := []struct {
		name       string
		reply      reply
		wantNotify string
	}{
		{
			name:       "daemon rejects",
			reply:      reply{err: fmt.Errorf("connect tunnel: %w", &mgmt.RPCError{Code: codes.FailedPrecondition, Message: "account expired"})},
			wantNotify: "connect failed: account expired",
		},
		{
			name:  "transport failure",
			reply: reply{err: fmt.Errorf("connect tunnel: %w", mgmt.ErrUnavailable)},
		},
		{
			name:  "no change",
			reply: reply{changed: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFakeCommander()
			cmd.reply(models.CommandConnect, tt.reply)
			e, host := startEngine(t, cmd, Options{})

			e.Resynced(1, models.Disconnected())
			first := waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))

			e.Dispatch(models.CommandConnect)
			// Begin and Revert each take a sequence number.
			snap := waitFor(t, e, "reverted", func(s state.Snapshot) bool {
				return s.Seq == first.Seq+2
			})
			if snap.Provisional || snap.State.Phase != models.PhaseDisconnected {
				t.Errorf("snapshot after revert = %+v", snap)
			}
			waitRendered(t, e, host)

			if tt.wantNotify == "" {
				if msgs := host.notified(); len(msgs) != 0 {
					t.Errorf("unexpected notifications %q", msgs)
				}
				return
			}
			msgs := waitNotified(t, host.notified, 1)
			if len(msgs) != 1 || msgs[0] != tt.wantNotify {
				t.Errorf("notifications = %q, want %q", msgs, tt.wantNotify)
			}
		})
	}
}

func TestNoticeSurvivesRevertRender(t *testing.T) {
	cmd := newFakeCommander()
	cmd.reply(models.CommandConnect, reply{err: &mgmt.RPCError{Code: codes.FailedPrecondition, Message: "account expired"}})
	host := &tooltipHost{}
	e := New(cmd, host, Options{Logger: zaptest.NewLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	e.Resynced(1, models.Disconnected())
	waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))

	e.Dispatch(models.CommandConnect)
	waitNotified(t, host.notified, 1)

	if got := host.model().Title; got != "connect failed: account expired" {
		t.Errorf("tooltip = %q, want the failure notice", got)
	}
	if got := host.model().Icon; got != tray.IconDisconnected {
		t.Errorf("icon = %q, want the reverted state", got)
	}
}

func TestRevertSkippedWhenEventArrivedFirst(t *testing.T) {
	cmd := newFakeCommander()
	gate := make(chan struct{})
	e, _ := startEngine(t, &gatedCommander{fakeCommander: cmd, gate: gate}, Options{})

	e.Resynced(1, models.Disconnected())
	waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))
	cmd.reply(models.CommandConnect, reply{changed: false})

	e.Dispatch(models.CommandConnect)
	waitFor(t, e, "provisional", phaseIs(models.PhaseConnecting, true))
	e.Event(1, models.Connected("se-got-wg-001", "", time.Unix(5, 0)))
	live := waitFor(t, e, "connected", phaseIs(models.PhaseConnected, false))

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if connects, _ := cmd.calls(); connects == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ConnectTunnel never returned")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The late result must not roll back the real state.
	e.Event(1, models.Connected("se-got-wg-001", "", time.Unix(5, 0)))
	final := waitFor(t, e, "second event", func(s state.Snapshot) bool { return s.Seq > live.Seq })
	if final.Seq != live.Seq+1 || final.State.Phase != models.PhaseConnected {
		t.Errorf("final snapshot = %+v, want only the second event after %d", final, live.Seq)
	}
}

type gatedCommander struct {
	*fakeCommander
	gate chan struct{}
}

func (c *gatedCommander) ConnectTunnel(ctx context.Context) (bool, error) {
	<-c.gate
	return c.fakeCommander.ConnectTunnel(ctx)
}

func TestStaleEpochDropped(t *testing.T) {
	e, _ := startEngine(t, newFakeCommander(), Options{})

	e.Resynced(2, models.Disconnected())
	e.Event(1, models.Connected("old", "", time.Unix(1, 0)))
	e.Lost(1, mgmt.ErrStreamClosed)
	e.Resynced(1, models.Connected("old", "", time.Unix(1, 0)))
	e.Event(2, models.Connecting("new", ""))

	snap := waitFor(t, e, "connecting", phaseIs(models.PhaseConnecting, false))
	if snap.State.Endpoint != "new" || snap.Seq != 2 {
		t.Errorf("snapshot = %+v, want connecting to new at seq 2", snap)
	}
}

func TestLostInvalidatesUntilResync(t *testing.T) {
	e, host := startEngine(t, newFakeCommander(), Options{})

	e.Resynced(1, models.Connected("se-got-wg-001", "", time.Unix(1, 0)))
	waitFor(t, e, "connected", phaseIs(models.PhaseConnected, false))

	e.Lost(1, mgmt.ErrStreamClosed)
	e.Event(1, models.Disconnected())
	unknown := waitFor(t, e, "unknown", func(s state.Snapshot) bool { return !s.Known })
	waitRendered(t, e, host)
	if host.model().Icon != tray.IconUnknown {
		t.Errorf("Icon = %q, want unknown", host.model().Icon)
	}

	e.Resynced(2, models.Disconnected())
	snap := waitFor(t, e, "resynced", phaseIs(models.PhaseDisconnected, false))
	if snap.Seq != unknown.Seq+1 {
		t.Errorf("seq = %d, want %d (stale event must be ignored)", snap.Seq, unknown.Seq+1)
	}
}

func TestInvalidStateDropped(t *testing.T) {
	e, _ := startEngine(t, newFakeCommander(), Options{})

	e.Resynced(1, models.Disconnected())
	first := waitFor(t, e, "disconnected", phaseIs(models.PhaseDisconnected, false))

	e.Event(1, models.TunnelState{Phase: "sideways"})
	e.Event(1, models.Disconnecting())
	snap := waitFor(t, e, "disconnecting", phaseIs(models.PhaseDisconnecting, false))
	if snap.Seq != first.Seq+1 {
		t.Errorf("seq = %d, want %d", snap.Seq, first.Seq+1)
	}
}

func TestQuit(t *testing.T) {
	quit := make(chan struct{})
	e, _ := startEngine(t, newFakeCommander(), Options{OnQuit: func() { close(quit) }})

	e.Dispatch(models.CommandQuit)
	select {
	case <-quit:
	case <-time.After(2 * time.Second):
		t.Fatal("OnQuit not called")
	}
}

func TestPostAfterStopDoesNotBlock(t *testing.T) {
	e := New(newFakeCommander(), &fakeHost{}, Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < InboxSize*2; i++ {
			e.Event(1, models.Disconnected())
		}
		e.Lost(1, errors.New("gone"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posting to a stopped engine blocked")
	}
}
