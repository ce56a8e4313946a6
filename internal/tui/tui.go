// Package tui is the terminal host used by `mulltray watch`. It shows the
// same icon, title and menu as the tray and binds the menu to keys.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/tray"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (r *programRef) Quit() {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// UI runs the terminal view and implements tray.Host.
type UI struct {
	ref     *programRef
	program *tea.Program
}

var _ tray.Host = (*UI)(nil)

// New creates the terminal view. dispatch receives the commands bound to
// key presses.
func New(socketPath string, dispatch func(models.Command), opts ...tea.ProgramOption) *UI {
	ref := &programRef{}
	p := tea.NewProgram(NewModel(socketPath, dispatch), opts...)
	ref.Set(p)
	return &UI{ref: ref, program: p}
}

// Run blocks until the view exits.
func (u *UI) Run() error {
	defer u.ref.Clear()
	_, err := u.program.Run()
	return err
}

// Quit asks the view to exit.
func (u *UI) Quit() {
	u.ref.Quit()
}

func (u *UI) SetIcon(icon tray.Icon) {
	u.ref.Send(iconMsg{icon: icon})
}

func (u *UI) SetTooltip(title string) {
	u.ref.Send(titleMsg{title: title})
}

func (u *UI) SetMenu(entries []tray.MenuEntry) {
	u.ref.Send(menuMsg{entries: entries})
}

func (u *UI) Notify(message string) {
	u.ref.Send(noticeMsg{text: message})
}
