// Package state persists the per-feed watermarks and the fingerprints of
// delivered posts between runs.
//
// The store assumes a single running instance: there is no file locking and
// two concurrent runs against the same path race each other.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
)

// SchemaVersion is the newest on-disk layout this program understands.
const SchemaVersion = 1

// Retention bounds how long a fingerprint is remembered after it was last
// seen.
const Retention = 120 * 24 * time.Hour

// ErrUnsupportedSchema means the state was written by a newer program. The
// caller must stop instead of overwriting it.
var ErrUnsupportedSchema = errors.New("unsupported database schema")

type State struct {
	Schema     int
	Watermarks map[string]string // feed display name -> last update
	Seen       map[string]string // fingerprint -> last seen
}

func New() *State {
	return &State{
		Schema:     SchemaVersion,
		Watermarks: make(map[string]string),
		Seen:       make(map[string]string),
	}
}

type Store interface {
	// Load returns an empty state for a missing or unreadable database and
	// ErrUnsupportedSchema for one written by a newer version.
	Load() (*State, error)
	// Save overwrites the database with st.
	Save(st *State) error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend at path.
func Open(backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(path, logger), nil
	case BackendSQLite:
		return NewSQLiteStore(path, logger), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}

func unsupported(found int) error {
	return fmt.Errorf("%w: database has scheme %d but only up to %d is supported, please upgrade feed2maildir",
		ErrUnsupportedSchema, found, SchemaVersion)
}

// prune drops fingerprints last seen more than Retention before now. The
// comparison is between wall clocks, ignoring zones, as the database has
// always done.
func prune(seen map[string]string, now time.Time, normalizer *dates.Normalizer, logger *slog.Logger) map[string]string {
	kept := make(map[string]string, len(seen))
	nowWall := wallClock(now)

	for fingerprint, when := range seen {
		t, err := normalizer.Parse(when)
		if err != nil {
			logger.Warn("Dropping fingerprint with unreadable date", "fingerprint", fingerprint, "date", when)
			continue
		}
		if nowWall.Sub(wallClock(t)) < Retention {
			kept[fingerprint] = when
		}
	}

	if dropped := len(seen) - len(kept); dropped > 0 {
		logger.Debug("Expired fingerprints dropped", "dropped", dropped, "kept", len(kept))
	}
	return kept
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
