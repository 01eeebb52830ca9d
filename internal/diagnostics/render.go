package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	colorRed   = "\x1b[31m"
	colorBold  = "\x1b[1m"
	colorReset = "\x1b[0m"
)

// IsTerminal reports whether w is a terminal that accepts ANSI colours.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes one line per diagnostic. Positions and codes are highlighted
// when w is a terminal.
func Render(w io.Writer, errs []*DiagnosticError) {
	color := IsTerminal(w)
	for _, e := range errs {
		loc := fmt.Sprintf("%d:%d", e.Pos.Line, e.Pos.Column)
		if e.File != "" {
			loc = e.File + ":" + loc
		}
		if color {
			fmt.Fprintf(w, "%s%s%s: %s%s [%s]%s: %s\n",
				colorBold, loc, colorReset, colorRed, e.Code.Name(), e.Code, colorReset, e.Message)
			continue
		}
		fmt.Fprintf(w, "%s: %s [%s]: %s\n", loc, e.Code.Name(), e.Code, e.Message)
	}
}
