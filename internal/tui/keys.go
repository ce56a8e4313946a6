package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/mulltray/mulltray/internal/models"
)

// KeyMap binds the menu entries to keys.
type KeyMap struct {
	Connect    key.Binding
	Disconnect key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
}

var keys = KeyMap{
	Connect: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}

// binding returns the key bound to cmd.
func (k KeyMap) binding(cmd models.Command) (key.Binding, bool) {
	switch cmd {
	case models.CommandConnect:
		return k.Connect, true
	case models.CommandDisconnect:
		return k.Disconnect, true
	case models.CommandQuit:
		return k.Quit, true
	default:
		return key.Binding{}, false
	}
}
