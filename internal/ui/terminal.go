package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

// ShouldUseColor reports whether stdout takes ANSI colors. NO_COLOR turns
// them off, CLICOLOR_FORCE=1 turns them on without a TTY, CLICOLOR=0 turns
// them off, and otherwise a terminal gets color.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Init disables color when stdout should not get it. Call once at startup.
func Init() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}

// Width returns the stdout terminal width.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
