package models

import (
	"fmt"
	"time"
)

// TunnelPhase is the discriminator of a TunnelState.
type TunnelPhase string

const (
	PhaseDisconnected  TunnelPhase = "disconnected"
	PhaseConnecting    TunnelPhase = "connecting"
	PhaseConnected     TunnelPhase = "connected"
	PhaseDisconnecting TunnelPhase = "disconnecting"
	PhaseError         TunnelPhase = "error"
)

// Valid reports whether p is one of the known phases.
func (p TunnelPhase) Valid() bool {
	switch p {
	case PhaseDisconnected, PhaseConnecting, PhaseConnected, PhaseDisconnecting, PhaseError:
		return true
	}
	return false
}

// TunnelState is the VPN tunnel's phase as reported by the daemon.
// Endpoint and Location apply to Connecting and Connected, Since to
// Connected, and Reason to Error. Other fields are left zero.
type TunnelState struct {
	Phase    TunnelPhase
	Endpoint string    // relay hostname, may be empty
	Location string    // "City, Country", may be empty
	Since    time.Time // when the tunnel came up
	Reason   string    // error cause
}

// Disconnected returns the Disconnected state.
func Disconnected() TunnelState { return TunnelState{Phase: PhaseDisconnected} }

// Connecting returns a Connecting state towards endpoint.
func Connecting(endpoint, location string) TunnelState {
	return TunnelState{Phase: PhaseConnecting, Endpoint: endpoint, Location: location}
}

// Connected returns a Connected state.
func Connected(endpoint, location string, since time.Time) TunnelState {
	return TunnelState{Phase: PhaseConnected, Endpoint: endpoint, Location: location, Since: since}
}

// Disconnecting returns the Disconnecting state.
func Disconnecting() TunnelState { return TunnelState{Phase: PhaseDisconnecting} }

// ErrorState returns an Error state with the given cause, which may be empty.
func ErrorState(reason string) TunnelState {
	return TunnelState{Phase: PhaseError, Reason: reason}
}

// Validate checks that the state is a well-formed variant.
func (s TunnelState) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("unknown tunnel phase %q", s.Phase)
	}
	return nil
}

// Equal reports whether two states describe the same variant and payload.
func (s TunnelState) Equal(o TunnelState) bool {
	return s.Phase == o.Phase &&
		s.Endpoint == o.Endpoint &&
		s.Location == o.Location &&
		s.Since.Equal(o.Since) &&
		s.Reason == o.Reason
}

func (s TunnelState) String() string {
	switch s.Phase {
	case PhaseConnected, PhaseConnecting:
		if s.Endpoint != "" {
			return fmt.Sprintf("%s(%s)", s.Phase, s.Endpoint)
		}
	case PhaseError:
		if s.Reason != "" {
			return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
		}
	}
	return string(s.Phase)
}
