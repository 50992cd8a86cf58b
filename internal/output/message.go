package output

import (
	"fmt"
	"io"
)

// Notices go to stderr so stdout stays machine-readable.

// Info writes an informational notice.
func Info(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "info: "+format+"\n", args...)
}

// Warn writes a warning notice.
func Warn(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

// Success writes a success notice.
func Success(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "ok: "+format+"\n", args...)
}
