// package shared holds the cross-cutting pieces of the conversion service:
// logging, configuration, the error catalogue and database setup.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger builds the [log.Logger] used across the conversion service,
// writing to w with timestamps and caller reporting on.
//
// A nil writer falls back to [os.Stderr].
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger derives a child [log.Logger] carrying the given key-value
// pairs on every entry, for per-request or per-playlist context.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel adjusts the [log.Level] of an existing logger.
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID returns a fresh v4 [uuid.UUID] string, used for OAuth state
// tokens and access-request identifiers.
func GenerateID() string {
	return uuid.New().String()
}
