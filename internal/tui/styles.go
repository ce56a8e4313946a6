package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mulltray/mulltray/internal/tray"
)

// Colors using AdaptiveColor for light/dark terminal support.
var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	socketStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(lipgloss.AdaptiveColor{Light: "235", Dark: "236"})

	historyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	noticeStyle = lipgloss.NewStyle().
			Background(colorYellow).
			Foreground(lipgloss.AdaptiveColor{Light: "0", Dark: "0"}).
			Bold(true).
			Padding(0, 1)
)

// Key hint styles.
var (
	keyStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	hintStyle        = lipgloss.NewStyle().Foreground(colorDim)
	disabledKeyStyle = lipgloss.NewStyle().Foreground(colorDim).Strikethrough(true)
)

// iconStyles color the status badge by icon.
var iconStyles = map[tray.Icon]lipgloss.Style{
	tray.IconConnected:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
	tray.IconAcquiring:    lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
	tray.IconDisconnected: lipgloss.NewStyle().Foreground(colorWhite),
	tray.IconError:        lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	tray.IconUnknown:      lipgloss.NewStyle().Foreground(colorDim),
}

// iconGlyphs stand in for the tray icons.
var iconGlyphs = map[tray.Icon]string{
	tray.IconConnected:    "●",
	tray.IconAcquiring:    "◐",
	tray.IconDisconnected: "○",
	tray.IconError:        "✕",
	tray.IconUnknown:      "?",
}
