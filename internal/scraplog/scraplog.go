// Package scraplog builds the shared btclog backend used by every SCRAP
// subsystem and CLI binary, following the same console+rotating-file
// backend construction lnd's own subsystems use.
package scraplog

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// Backend wraps a btclog.Backend writing to stdout and, if configured, a
// rotating log file.
type Backend struct {
	backend *btclog.Backend
	rotator *rotator.Rotator
}

// NewBackend constructs a logging backend. If logFile is empty, logs go to
// stdout only.
func NewBackend(logFile string) (*Backend, error) {
	if logFile == "" {
		return &Backend{backend: btclog.NewBackend(os.Stdout)}, nil
	}

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, err
	}

	return &Backend{
		backend: btclog.NewBackend(writerFunc(func(p []byte) (int, error) {
			os.Stdout.Write(p)
			return r.Write(p)
		})),
		rotator: r,
	}, nil
}

// Logger returns a named subsystem logger at the given level (one of
// btclog's level strings: "trace", "debug", "info", "warn", "error",
// "critical", "off").
func (b *Backend) Logger(subsystem, level string) btclog.Logger {
	l := b.backend.Logger(subsystem)
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	l.SetLevel(lvl)
	return l
}

// Close flushes and closes the underlying rotator, if any.
func (b *Backend) Close() {
	if b.rotator != nil {
		b.rotator.Close()
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
