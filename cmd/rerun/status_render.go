package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// tone classifies a status value for color selection.
type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneWarn
	toneBad
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

const fieldNameWidth = 16

// stateTone maps a playback loop state to the color the status view gives
// it. Resolving and advancing are transient and stay neutral.
func stateTone(state string) tone {
	switch state {
	case "playing":
		return toneGood
	case "draining":
		return toneWarn
	case "failed":
		return toneBad
	default:
		return toneNeutral
	}
}

func toneColor(t tone) string {
	switch t {
	case toneGood:
		return ansiGreen
	case toneWarn:
		return ansiYellow
	case toneBad:
		return ansiRed
	default:
		return ""
	}
}

// fieldLine renders one "name  value" row of the status view.
func fieldLine(name, value string, t tone, colorize bool) string {
	line := fmt.Sprintf("  %-*s %s", fieldNameWidth, name, value)
	if !colorize {
		return line
	}
	color := toneColor(t)
	if color == "" {
		return line
	}
	return color + line + ansiReset
}

// sectionTitle renders the heading above a group of status fields.
func sectionTitle(title string, colorize bool) string {
	heading := strings.ToUpper(strings.TrimSpace(title))
	if colorize {
		return ansiCyan + heading + ansiReset
	}
	return heading
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
