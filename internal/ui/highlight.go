package ui

import (
	"io"

	"github.com/alecthomas/chroma/v2/quick"
)

// DefaultTheme is the chroma style used when none is configured
const DefaultTheme = "monokai"

// Highlight writes PHP source to w with terminal colors
func Highlight(w io.Writer, src, theme string) error {
	if theme == "" {
		theme = DefaultTheme
	}

	return quick.Highlight(w, src, "php", "terminal256", theme)
}
