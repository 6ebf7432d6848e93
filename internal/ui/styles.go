package ui

import (
	"fmt"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorTeam   = 114 // green
	colorSolo   = 179 // amber
	colorWarn   = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderWarning returns s in the warning (red) color.
func RenderWarning(s string) string { return paint(colorWarn, s) }

// RenderMode colors a session mode: TEAM green, SOLO amber.
func RenderMode(m model.Mode) string {
	switch m {
	case model.ModeTeam:
		return paint(colorTeam, m.String())
	case model.ModeSolo:
		return paint(colorSolo, m.String())
	}
	return m.String()
}

// RenderVisibility mutes private sessions.
func RenderVisibility(v model.Visibility) string {
	if v == model.VisibilityPrivate {
		return RenderMuted(v.String())
	}
	return v.String()
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
