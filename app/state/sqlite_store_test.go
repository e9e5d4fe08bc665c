package state

import (
	"bytes"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "f2m.sqlite")
	store := NewSQLiteStore(path, slog.New(slog.NewTextHandler(&buf, nil)))
	return store, &buf
}

func TestSQLiteStoreMissingFile(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Schema != SchemaVersion || len(st.Watermarks) != 0 || len(st.Seen) != 0 {
		t.Errorf("Expected empty state, got %+v", st)
	}
}

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	st := New()
	st.Watermarks["Example"] = "2024-05-30 10:00:00 UTC"
	st.Seen["recent"] = dates.Format(now.AddDate(0, 0, -119))
	st.Seen["old"] = dates.Format(now.AddDate(0, 0, -121))

	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Watermarks["Example"] != "2024-05-30 10:00:00 UTC" {
		t.Errorf("Expected watermark round trip, got %v", loaded.Watermarks)
	}
	if _, ok := loaded.Seen["recent"]; !ok {
		t.Error("Expected fingerprint seen 119 days ago to be kept")
	}
	if _, ok := loaded.Seen["old"]; ok {
		t.Error("Expected fingerprint seen 121 days ago to be dropped")
	}

	// A second save replaces the previous content
	next := New()
	next.Watermarks["Other"] = "2024-06-01 10:00:00 UTC"
	if err := store.Save(next); err != nil {
		t.Fatal(err)
	}

	loaded, err = store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Watermarks) != 1 || loaded.Watermarks["Other"] == "" {
		t.Errorf("Expected watermarks replaced wholesale, got %v", loaded.Watermarks)
	}
	if len(loaded.Seen) != 0 {
		t.Errorf("Expected fingerprints replaced wholesale, got %v", loaded.Seen)
	}
}

func TestSQLiteStoreRejectsFutureVersion(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	if err := store.Save(New()); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", store.path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET version = 99`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := store.Load(); !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("Expected ErrUnsupportedSchema, got %v", err)
	}
	if err := store.Save(New()); !errors.Is(err, ErrUnsupportedSchema) {
		t.Errorf("Expected save to refuse a newer database, got %v", err)
	}
}

func TestSQLiteStoreMalformed(t *testing.T) {
	store, logs := newTestSQLiteStore(t)

	if err := os.WriteFile(store.path, []byte("this is not a database, just text that is long enough"), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Watermarks) != 0 || len(st.Seen) != 0 {
		t.Errorf("Expected empty state, got %+v", st)
	}
	if !strings.Contains(logs.String(), "Database is malformed and will be ignored") {
		t.Errorf("Expected malformed warning, got: %s", logs.String())
	}
}
