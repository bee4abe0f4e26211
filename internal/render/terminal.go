package render

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// columnZero moves the cursor to the first column of the current line.
const columnZero = "\x1b[1G"

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// lines splits s the way the renderer counts terminal lines: a trailing
// newline does not start a new line and carriage returns are dropped.
func lines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i := range parts {
		parts[i] = strings.TrimSuffix(parts[i], "\r")
	}
	return parts
}
