// Package state holds the single authoritative tunnel state.
//
// A Reconciler is not safe for concurrent use. It is owned by the engine
// loop, which feeds it GetTunnelState responses, stream events, and
// command transitions one at a time.
package state

import (
	"errors"
	"fmt"

	"github.com/mulltray/mulltray/internal/models"
)

// ErrInvalidState is returned for candidates that fail validation. The
// held snapshot is left untouched.
var ErrInvalidState = errors.New("invalid tunnel state")

// Snapshot is the accepted (state, sequence) pair. Known is false while
// the state is unverified, i.e. before the first GetTunnelState response
// and after every connection loss.
type Snapshot struct {
	State       models.TunnelState
	Seq         uint64
	Provisional bool
	Known       bool
}

// Reconciler merges daemon responses, stream events, and optimistic
// command transitions under last-accepted-wins.
type Reconciler struct {
	current  Snapshot
	lastReal Snapshot
	seq      uint64
}

// New returns a reconciler in the unknown state.
func New() *Reconciler {
	return &Reconciler{}
}

// Snapshot returns the held snapshot.
func (r *Reconciler) Snapshot() Snapshot {
	return r.current
}

// Resync accepts a fresh GetTunnelState response. It is the only way out
// of the unknown state.
func (r *Reconciler) Resync(s models.TunnelState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	r.acceptReal(s)
	return nil
}

// Observe accepts a state pushed by the event stream. It reports false
// when the event was ignored because the state is awaiting a resync.
func (r *Reconciler) Observe(s models.TunnelState) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !r.current.Known {
		return false, nil
	}
	r.acceptReal(s)
	return true, nil
}

// Begin applies the optimistic transition for cmd and reports whether the
// command should be sent, with the sequence number of the provisional
// state it created. Connect while Connected and Disconnect while
// Disconnected are no-ops, as is any command while the state is unknown.
func (r *Reconciler) Begin(cmd models.Command) (seq uint64, send bool) {
	if !r.current.Known {
		return 0, false
	}

	var hint models.TunnelState
	switch cmd {
	case models.CommandConnect:
		if r.current.State.Phase == models.PhaseConnected && !r.current.Provisional {
			return 0, false
		}
		hint = models.Connecting("", "")
	case models.CommandDisconnect:
		if r.current.State.Phase == models.PhaseDisconnected && !r.current.Provisional {
			return 0, false
		}
		hint = models.Disconnecting()
	default:
		return 0, false
	}

	r.accept(hint, true)
	return r.current.Seq, true
}

// Revert undoes the provisional state created by Begin with seq, restoring
// the last real state under a new sequence number. It does nothing when a
// later state has been accepted since.
func (r *Reconciler) Revert(seq uint64) bool {
	if !r.current.Provisional || r.current.Seq != seq || !r.lastReal.Known {
		return false
	}
	r.accept(r.lastReal.State, false)
	return true
}

// Invalidate discards the held state as unverified. Stream events are
// ignored until the next Resync.
func (r *Reconciler) Invalidate() {
	r.seq++
	r.current = Snapshot{Seq: r.seq}
	r.lastReal = Snapshot{}
}

func (r *Reconciler) acceptReal(s models.TunnelState) {
	r.accept(s, false)
	r.lastReal = r.current
}

func (r *Reconciler) accept(s models.TunnelState, provisional bool) {
	r.seq++
	r.current = Snapshot{
		State:       s,
		Seq:         r.seq,
		Provisional: provisional,
		Known:       true,
	}
}
