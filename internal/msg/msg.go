// Package msg prints user-facing status lines. Everything goes to Output
// (stderr by default) so that stdout stays free for emitted link metadata.
package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var Output io.Writer = os.Stderr

func line(label string, format string, a ...any) {
	fmt.Fprint(Output, label)
	fmt.Fprint(Output, ": ")
	fmt.Fprintf(Output, format, a...)
	fmt.Fprint(Output, "\n")
}

func Error(format string, a ...any) {
	line(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	line(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	line(color.RedString("fatal"), format, a...)
	os.Exit(1)
}

func Info(format string, a ...any) {
	line(color.HiGreenString("info"), format, a...)
}

// Stage prints a right-aligned stage header, e.g. "  Generating skia (gn)".
func Stage(verb, format string, a ...any) {
	fmt.Fprintf(Output, "%12s %s\n", color.HiGreenString(verb), fmt.Sprintf(format, a...))
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	buf := make([]byte, 0, len(p)+len(w.Indent))
	for _, c := range p {
		if !w.didIndent {
			buf = append(buf, w.Indent...)
			w.didIndent = true
		}
		buf = append(buf, c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if _, err := w.W.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}
