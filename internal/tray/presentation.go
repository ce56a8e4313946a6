// Package tray maps the authoritative tunnel state to a tray icon and
// menu and pushes them to a Host.
package tray

import (
	"fmt"

	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
)

// Icon identifies a tray icon by its freedesktop symbolic name.
type Icon string

const (
	IconConnected    Icon = "network-vpn-symbolic"
	IconAcquiring    Icon = "network-vpn-acquiring-symbolic"
	IconDisconnected Icon = "network-vpn-disconnected-symbolic"
	IconError        Icon = "network-vpn-error-symbolic"
	IconUnknown      Icon = "network-vpn-offline-symbolic"
)

// AppName prefixes every tooltip.
const AppName = "mulltray"

// MenuEntry is one tray menu item bound to a command.
type MenuEntry struct {
	Label   string
	Enabled bool
	Command models.Command
}

// Model is the immutable presentation of one snapshot.
type Model struct {
	Icon    Icon
	Title   string
	Entries []MenuEntry
}

// Present derives the presentation model for s. It is a pure function.
func Present(s state.Snapshot) Model {
	var (
		icon                      Icon
		status                    string
		canConnect, canDisconnect bool
	)

	if !s.Known {
		icon, status = IconUnknown, "unknown"
	} else {
		st := s.State
		switch st.Phase {
		case models.PhaseDisconnected:
			icon, status = IconDisconnected, "disconnected"
			canConnect = true
		case models.PhaseConnecting:
			icon = IconAcquiring
			status = "connecting.."
			if st.Endpoint != "" {
				status = fmt.Sprintf("connecting to %s..", st.Endpoint)
			}
		case models.PhaseConnected:
			icon = IconConnected
			status = "connected to an unknown server"
			if st.Endpoint != "" {
				status = "connected to " + st.Endpoint
			}
			canDisconnect = true
		case models.PhaseDisconnecting:
			icon, status = IconAcquiring, "disconnecting.."
		case models.PhaseError:
			icon = IconError
			status = "error"
			if st.Reason != "" {
				status = "error " + st.Reason
			}
			canConnect = true
		default:
			icon, status = IconUnknown, "unknown"
		}
	}

	return Model{
		Icon:  icon,
		Title: AppName + " - " + status,
		Entries: []MenuEntry{
			{Label: "Connect", Enabled: canConnect, Command: models.CommandConnect},
			{Label: "Disconnect", Enabled: canDisconnect, Command: models.CommandDisconnect},
			{Label: "Quit", Enabled: true, Command: models.CommandQuit},
		},
	}
}

// Enabled reports whether the model has an enabled entry bound to cmd.
func (m Model) Enabled(cmd models.Command) bool {
	for _, e := range m.Entries {
		if e.Command == cmd {
			return e.Enabled
		}
	}
	return false
}

// Equal reports whether two models render identically.
func (m Model) Equal(o Model) bool {
	return m.Icon == o.Icon && m.Title == o.Title && entriesEqual(m.Entries, o.Entries)
}

func entriesEqual(a, b []MenuEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
