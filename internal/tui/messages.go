package tui

import "github.com/mulltray/mulltray/internal/tray"

// iconMsg carries a new tray icon.
type iconMsg struct {
	icon tray.Icon
}

// titleMsg carries a new tooltip title.
type titleMsg struct {
	title string
}

// menuMsg carries the menu entries.
type menuMsg struct {
	entries []tray.MenuEntry
}

// noticeMsg carries a transient notification.
type noticeMsg struct {
	text string
}

// clearNoticeMsg hides the notification with the given id.
type clearNoticeMsg struct {
	id int
}
