package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/google/renameio"
)

const schemeKey = "feed2maildir_db_scheme"

// document is the JSON layout since scheme 1. Scheme 0 files are a bare
// object of feed name to watermark.
type document struct {
	Scheme       int               `json:"feed2maildir_db_scheme"`
	FeedsChecked map[string]string `json:"feeds_last_time_checked"`
	PostsSeen    map[string]string `json:"posts_seen"`

	legacy map[string]string
}

// upgrades[n] turns a scheme n document into a scheme n+1 one.
var upgrades = map[int]func(doc *document){
	0: func(doc *document) {
		// A scheme 0 file may also carry the tag and both maps.
		if doc.legacy != nil {
			doc.FeedsChecked = doc.legacy
		}
		doc.PostsSeen = nonNil(doc.PostsSeen)
		doc.legacy = nil
	},
}

type JSONStore struct {
	path       string
	logger     *slog.Logger
	normalizer *dates.Normalizer
	Now        func() time.Time
}

func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{
		path:       path,
		logger:     logger,
		normalizer: dates.NewNormalizer(),
		Now:        time.Now,
	}
}

func (s *JSONStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		s.logger.Warn("Database could not be read and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	doc, err := decode(data)
	if err != nil {
		s.logger.Warn("Database is malformed and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	if err := s.upgrade(doc); err != nil {
		if errors.Is(err, ErrUnsupportedSchema) {
			return nil, err
		}
		s.logger.Warn("Database is malformed and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	return &State{
		Schema:     SchemaVersion,
		Watermarks: doc.FeedsChecked,
		Seen:       prune(doc.PostsSeen, s.Now(), s.normalizer, s.logger),
	}, nil
}

func (s *JSONStore) Save(st *State) error {
	if st.Schema != SchemaVersion {
		return fmt.Errorf("refusing to save state with scheme %d", st.Schema)
	}

	data, err := json.Marshal(document{
		Scheme:       SchemaVersion,
		FeedsChecked: nonNil(st.Watermarks),
		PostsSeen:    nonNil(st.Seen),
	})
	if err != nil {
		return fmt.Errorf("failed to encode database: %w", err)
	}

	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}
	return nil
}

func (s *JSONStore) upgrade(doc *document) error {
	if doc.Scheme > SchemaVersion {
		return unsupported(doc.Scheme)
	}
	if doc.Scheme < SchemaVersion {
		s.logger.Info("Database scheme will be upgraded", "from", doc.Scheme, "to", SchemaVersion)
	}
	for doc.Scheme < SchemaVersion {
		step, ok := upgrades[doc.Scheme]
		if !ok {
			return fmt.Errorf("no upgrade from scheme %d", doc.Scheme)
		}
		step(doc)
		doc.Scheme++
	}

	doc.FeedsChecked = nonNil(doc.FeedsChecked)
	doc.PostsSeen = nonNil(doc.PostsSeen)
	return nil
}

// decode resolves which layout data uses by the presence of the scheme key.
func decode(data []byte) (*document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, errors.New("database is not a JSON object")
	}

	if _, versioned := probe[schemeKey]; !versioned {
		legacy := make(map[string]string, len(probe))
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("scheme 0 database: %w", err)
		}
		return &document{Scheme: 0, legacy: legacy}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Scheme < 0 {
		return nil, fmt.Errorf("invalid scheme %d", doc.Scheme)
	}
	return &doc, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return m
}
