// Package ui holds terminal color helpers for the CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI256 color codes.
const (
	colorGood  = 71  // green: healthy, closed
	colorBad   = 167 // red: tripped, open
	colorWarn  = 179 // yellow: probing, half-open
	colorMuted = 245 // medium gray
)

var noColor bool

// ShouldUseColor reports whether ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org — any non-empty value disables color.
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

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderGood returns s in green.
func RenderGood(s string) string { return render(colorGood, s) }

// RenderBad returns s in red.
func RenderBad(s string) string { return render(colorBad, s) }

// RenderWarn returns s in yellow.
func RenderWarn(s string) string { return render(colorWarn, s) }

// RenderMuted returns s in gray.
func RenderMuted(s string) string { return render(colorMuted, s) }
