// Package sparklog provides the shared btclog plumbing used by every
// subsystem in this module. Each package declares its own subsystem tag
// and obtains a logger through UseLogger; nothing here is a global sink.
package sparklog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Disabled returns a logger that discards everything, used as the
// default for packages before UseLogger is called on them.
func Disabled() btclog.Logger {
	return btclog.Disabled
}

// NewBackend builds a btclog.Backend writing to w, defaulting to
// os.Stderr when w is nil. Subsystem loggers are obtained by calling
// Logger on the returned backend once per subsystem tag.
func NewBackend(w io.Writer) *btclog.Backend {
	if w == nil {
		w = os.Stderr
	}
	return btclog.NewBackend(w)
}

// Logger creates a subsystem logger from backend tagged with subsystem,
// at the given level. Mirrors the lnd/taproot-assets convention of a
// four-letter subsystem tag (e.g. "SGNR", "XFER", "OPTM").
func Logger(backend *btclog.Backend, subsystem string, level btclog.Level) btclog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(level)
	return l
}
