package tray

// Host is the UI toolkit side of the tray. The core only pushes to it and
// never reads UI state back.
type Host interface {
	SetIcon(icon Icon)
	SetTooltip(title string)
	SetMenu(entries []MenuEntry)
	Notify(message string)
}

// Renderer forwards models to a Host, skipping parts that did not change.
type Renderer struct {
	host Host
	last *Model
}

// NewRenderer creates a renderer for h.
func NewRenderer(h Host) *Renderer {
	return &Renderer{host: h}
}

// Render pushes m to the host. It reports whether anything was pushed.
func (r *Renderer) Render(m Model) bool {
	if r.last != nil && r.last.Equal(m) {
		return false
	}
	if r.last == nil || r.last.Icon != m.Icon {
		r.host.SetIcon(m.Icon)
	}
	if r.last == nil || r.last.Title != m.Title {
		r.host.SetTooltip(m.Title)
	}
	if r.last == nil || !entriesEqual(r.last.Entries, m.Entries) {
		entries := make([]MenuEntry, len(m.Entries))
		copy(entries, m.Entries)
		r.host.SetMenu(entries)
	}
	r.last = &m
	return true
}

// Last returns the most recently rendered model.
func (r *Renderer) Last() (Model, bool) {
	if r.last == nil {
		return Model{}, false
	}
	return *r.last, true
}

// Notify shows a transient message without touching the model.
func (r *Renderer) Notify(message string) {
	r.host.Notify(message)
}
