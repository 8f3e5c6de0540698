package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/sautisahihi/sauticore/internal/logging"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// Schema version for migrations
const currentSchemaVersion = 1

// StoreConfig configures the SQLite backend
type StoreConfig struct {
	Path        string // Database file path
	BusyTimeout int    // Busy timeout in ms (default: 5000)
}

// NewSQLiteStore opens (creating if needed) the response cache database.
func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	L_info("cache: store opened", "path", cfg.Path)
	return store, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle, running migrations.
// Used when cache, chat and prefs share one database file.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

// migrate runs schema migrations
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM cache_schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, start from scratch
		version = 0
	}

	if version >= currentSchemaVersion {
		L_debug("cache: schema up to date", "version", version)
		return nil
	}

	L_info("cache: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("cache: applied migration", "version", i+1)
	}

	return nil
}

// migrateV1 creates the initial schema
func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO cache_schema_version (version, applied_at) VALUES (1, ?);

	-- Response cache: one row per derived key, last write wins
	CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		generation INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	`

	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// Get returns the entry for key, or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT key, value, generation, created_at FROM responses WHERE key = ?", key)

	var e Entry
	var createdAt int64
	if err := row.Scan(&e.Key, &e.Value, &e.Generation, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

// Put writes value under key. A single UPSERT keeps concurrent writers
// last-write-wins without any read-modify-write race.
func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (key, value, generation, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			generation = responses.generation + 1,
			created_at = excluded.created_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ?", key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so chat and prefs can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
