package tray

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
)

type recordingHost struct {
	icons    []Icon
	titles   []string
	menus    [][]MenuEntry
	messages []string
}

func (h *recordingHost) SetIcon(icon Icon)           { h.icons = append(h.icons, icon) }
func (h *recordingHost) SetTooltip(title string)     { h.titles = append(h.titles, title) }
func (h *recordingHost) SetMenu(entries []MenuEntry) { h.menus = append(h.menus, entries) }
func (h *recordingHost) Notify(message string)       { h.messages = append(h.messages, message) }

func TestRendererSkipsUnchangedParts(t *testing.T) {
	host := &recordingHost{}
	r := NewRenderer(host)

	if !r.Render(Present(state.Snapshot{})) {
		t.Fatal("first render should push")
	}
	if len(host.icons) != 1 || len(host.titles) != 1 || len(host.menus) != 1 {
		t.Fatalf("first render pushed icons=%d titles=%d menus=%d", len(host.icons), len(host.titles), len(host.menus))
	}

	if r.Render(Present(state.Snapshot{Seq: 5})) {
		t.Error("identical model should not be pushed")
	}

	// Connecting and Disconnecting share the icon and the menu.
	r.Render(Present(state.Snapshot{State: models.Connecting("", ""), Known: true}))
	r.Render(Present(state.Snapshot{State: models.Disconnecting(), Known: true}))
	if len(host.icons) != 2 {
		t.Errorf("icons pushed = %d, want 2", len(host.icons))
	}
	if len(host.titles) != 3 {
		t.Errorf("titles pushed = %d, want 3", len(host.titles))
	}
	if len(host.menus) != 1 {
		t.Errorf("menus pushed = %d, want 1 (all disabled in each state)", len(host.menus))
	}

	last, ok := r.Last()
	if !ok || last.Title != "mulltray - disconnecting.." {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestRendererCopiesEntries(t *testing.T) {
	host := &recordingHost{}
	r := NewRenderer(host)

	m := Present(state.Snapshot{State: models.Disconnected(), Known: true})
	r.Render(m)
	m.Entries[0].Label = "mutated"

	if host.menus[0][0].Label != "Connect" {
		t.Error("host menu shares memory with the model")
	}
}

func TestIconPNG(t *testing.T) {
	for _, icon := range []Icon{IconConnected, IconAcquiring, IconDisconnected, IconError, IconUnknown} {
		img, err := png.Decode(bytes.NewReader(IconPNG(icon)))
		if err != nil {
			t.Fatalf("%s: %v", icon, err)
		}
		if b := img.Bounds(); b.Dx() != iconSize || b.Dy() != iconSize {
			t.Errorf("%s: bounds %v", icon, b)
		}
	}
	if !bytes.Equal(IconPNG(IconConnected), IconPNG(IconConnected)) {
		t.Error("icon bytes should be cached")
	}
}
