// Package systray hosts the tray model in the desktop's status area.
package systray

import (
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/tray"
)

const maxMenuSlots = 4

// Tray hosts the presentation model in the system tray.
type Tray struct {
	dispatch func(models.Command)
	logger   *zap.Logger

	header *systray.MenuItem
	slots  [maxMenuSlots]*systray.MenuItem

	// Maps slot index → bound command
	slotMu       sync.RWMutex
	slotCommands [maxMenuSlots]models.Command
}

// New creates a tray that hands every menu click to dispatch.
func New(dispatch func(models.Command), logger *zap.Logger) *Tray {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tray{dispatch: dispatch, logger: logger}
}

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStart is called when the tray is ready; the host methods may be used
// from then on. onExit is called when the tray exits.
func (t *Tray) Run(onStart, onExit func()) {
	systray.Run(func() {
		t.onReady()
		if onStart != nil {
			onStart()
		}
	}, onExit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	initial := tray.Present(state.Snapshot{})
	systray.SetIcon(tray.IconPNG(initial.Icon))
	systray.SetTooltip(initial.Title)

	// Header
	t.header = systray.AddMenuItem(initial.Title, "")
	t.header.Disable()

	systray.AddSeparator()

	// Pre-allocate entry slots (hidden until the first SetMenu)
	for i := 0; i < maxMenuSlots; i++ {
		t.slots[i] = systray.AddMenuItem("", "")
		t.slots[i].Hide()
		go t.handleClicks(i)
	}
}

func (t *Tray) handleClicks(slot int) {
	for range t.slots[slot].ClickedCh {
		t.slotMu.RLock()
		cmd := t.slotCommands[slot]
		t.slotMu.RUnlock()

		if cmd == models.CommandNone {
			continue
		}
		t.logger.Debug("menu clicked", zap.Stringer("command", cmd), zap.Int("slot", slot))
		t.dispatch(cmd)
	}
}

// SetIcon implements tray.Host.
func (t *Tray) SetIcon(icon tray.Icon) {
	systray.SetIcon(tray.IconPNG(icon))
}

// SetTooltip implements tray.Host.
func (t *Tray) SetTooltip(title string) {
	systray.SetTooltip(title)
	if t.header != nil {
		t.header.SetTitle(title)
	}
}

// SetMenu implements tray.Host. Entries beyond the pre-allocated slots are dropped.
func (t *Tray) SetMenu(entries []tray.MenuEntry) {
	if len(entries) > maxMenuSlots {
		t.logger.Warn("menu has more entries than slots", zap.Int("entries", len(entries)))
		entries = entries[:maxMenuSlots]
	}

	t.slotMu.Lock()
	for i := 0; i < maxMenuSlots; i++ {
		t.slotCommands[i] = models.CommandNone
	}
	for i, e := range entries {
		t.slotCommands[i] = e.Command
	}
	t.slotMu.Unlock()

	for i, item := range t.slots {
		if item == nil {
			continue
		}
		if i >= len(entries) {
			item.Hide()
			continue
		}
		item.SetTitle(entries[i].Label)
		if entries[i].Enabled {
			item.Enable()
		} else {
			item.Disable()
		}
		item.Show()
	}
}

// Notify implements tray.Host. The tray has no notification area of its own,
// so the message replaces the tooltip until the next state change.
func (t *Tray) Notify(message string) {
	t.logger.Info("notification", zap.String("message", message))
	systray.SetTooltip(tray.AppName + " - " + message)
}
