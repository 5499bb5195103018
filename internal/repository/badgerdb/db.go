// Package badgerdb implements the repository interfaces on BadgerDB, an
// embedded key-value store. Records are JSON documents under a per-type key
// prefix; every update is a single read-modify-write transaction.
package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/limoline/dispatch/internal/logging"
)

// Open opens (or creates) the database in dir. An empty dir opens an
// in-memory database, which tests use.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(newBadgerLogger(logging.With().Str("component", "badger").Str("path", dir).Logger()))
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return db, nil
}

// badgerLogger routes badger's printf-style logging into zerolog. Badger is
// chatty at info level, so info is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func newBadgerLogger(l zerolog.Logger) *badgerLogger {
	return &badgerLogger{log: l}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
