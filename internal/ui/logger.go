// Package ui holds the terminal presentation helpers: the progress logger,
// lipgloss styles and syntax highlighting.
package ui

import (
	"io"
	"os"

	"github.com/pterm/pterm"
)

// TimeFormat is the timestamp layout of progress lines (day.month.year)
const TimeFormat = "02.01.2006 15:04:05"

// NewLogger creates a progress logger writing timestamped lines to w.
// Debug output is enabled when verbose is set. A nil writer means stdout.
func NewLogger(w io.Writer, verbose bool) *pterm.Logger {
	if w == nil {
		w = os.Stdout
	}

	level := pterm.LogLevelInfo
	if verbose {
		level = pterm.LogLevelDebug
	}

	return pterm.DefaultLogger.
		WithWriter(w).
		WithTime(true).
		WithTimeFormat(TimeFormat).
		WithLevel(level)
}

// Discard returns a logger that prints nothing
func Discard() *pterm.Logger {
	return pterm.DefaultLogger.
		WithWriter(io.Discard).
		WithLevel(pterm.LogLevelDisabled)
}
