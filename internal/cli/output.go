package cli

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// printer writes status lines for one-off commands, colored on terminals.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			p.color = info.Mode()&os.ModeCharDevice != 0
		}
	}
	return p
}

func (p *printer) line(color, mark, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.color {
		fmt.Fprintf(p.w, "%s%s%s %s\n", color, mark, colorReset, msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, msg)
}

func (p *printer) Success(format string, args ...any) { p.line(colorGreen, "✓", format, args...) }
func (p *printer) Warning(format string, args ...any) { p.line(colorYellow, "!", format, args...) }
func (p *printer) Error(format string, args ...any)   { p.line(colorRed, "✗", format, args...) }
