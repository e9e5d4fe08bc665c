package state

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore keeps the same state as JSONStore in an SQLite database. The
// migration version plays the role of the scheme.
type SQLiteStore struct {
	path       string
	logger     *slog.Logger
	normalizer *dates.Normalizer
	Now        func() time.Time
}

func NewSQLiteStore(path string, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		path:       path,
		logger:     logger,
		normalizer: dates.NewNormalizer(),
		Now:        time.Now,
	}
}

func (s *SQLiteStore) Load() (*State, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}

	if err := s.runMigrations(); err != nil {
		if errors.Is(err, ErrUnsupportedSchema) {
			return nil, err
		}
		s.logger.Warn("Database is malformed and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		s.logger.Warn("Database could not be opened and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}
	defer db.Close()

	watermarks, err := queryPairs(db, `SELECT feed_name, checked_at FROM feeds_last_time_checked`)
	if err != nil {
		s.logger.Warn("Database is malformed and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	seen, err := queryPairs(db, `SELECT fingerprint, seen_at FROM posts_seen`)
	if err != nil {
		s.logger.Warn("Database is malformed and will be ignored", "path", s.path, "error", err)
		return New(), nil
	}

	return &State{
		Schema:     SchemaVersion,
		Watermarks: watermarks,
		Seen:       prune(seen, s.Now(), s.normalizer, s.logger),
	}, nil
}

// Save replaces both tables in one transaction.
func (s *SQLiteStore) Save(st *State) error {
	if st.Schema != SchemaVersion {
		return fmt.Errorf("refusing to save state with scheme %d", st.Schema)
	}

	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("failed to prepare database: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replacePairs(tx, "feeds_last_time_checked", "feed_name", "checked_at", st.Watermarks); err != nil {
		return err
	}
	if err := replacePairs(tx, "posts_seen", "fingerprint", "seen_at", st.Seen); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit database: %w", err)
	}
	return nil
}

// runMigrations upgrades the database to SchemaVersion, creating it when
// needed.
func (s *SQLiteStore) runMigrations() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if version > SchemaVersion {
		return unsupported(int(version))
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d", version)
	}
	if err == nil && version < SchemaVersion {
		s.logger.Info("Database scheme will be upgraded", "from", version, "to", SchemaVersion)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func queryPairs(db *sql.DB, query string) (map[string]string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		pairs[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state rows: %w", err)
	}
	return pairs, nil
}

func replacePairs(tx *sql.Tx, table, keyColumn, valueColumn string, pairs map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?)`, table, keyColumn, valueColumn))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for key, value := range pairs {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}
