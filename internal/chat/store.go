package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// Store persists session transcripts.
type Store interface {
	AppendTurn(ctx context.Context, sessionKey string, t Turn) error
	LoadTurns(ctx context.Context, sessionKey string) ([]Turn, error)
	Close() error
}

const chatSchemaVersion = 1

// SQLiteStore keeps turns in a turns table, one row per turn, ordered by
// insertion. It can share a DB handle with the response cache.
type SQLiteStore struct {
	db   *sql.DB
	owns bool
}

// NewSQLiteStore opens (or creates) a turn store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db, owns: true}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	L_info("chat: turn store opened", "path", path)
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing handle. Close becomes a no-op so
// the owner keeps control of the connection.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM chat_schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}

	if version >= chatSchemaVersion {
		return nil
	}

	L_info("chat: migrating schema", "from", version, "to", chatSchemaVersion)

	migrations := []func(*sql.DB) error{migrateChatV1}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
	}
	return nil
}

func migrateChatV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO chat_schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key TEXT NOT NULL,
		id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		citations TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_key, seq);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// AppendTurn writes one turn. Citations marshal to a JSON column.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionKey string, t Turn) error {
	citations, err := json.Marshal(t.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO turns (session_key, id, role, text, citations, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sessionKey, t.ID, string(t.Role), t.Text, string(citations), t.CreatedAt.UnixMilli())
	return err
}

// LoadTurns returns a session's transcript in insertion order. An unknown
// key returns an empty slice, not an error.
func (s *SQLiteStore) LoadTurns(ctx context.Context, sessionKey string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, text, citations, created_at FROM turns WHERE session_key = ? ORDER BY seq",
		sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var role, citations string
		var createdAt int64
		if err := rows.Scan(&t.ID, &role, &t.Text, &citations, &createdAt); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		t.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(citations), &t.Citations); err != nil {
			L_warn("chat: bad citations row, dropping", "turn", t.ID, "error", err)
			t.Citations = []provider.Citation{}
		}
		if t.Citations == nil {
			t.Citations = []provider.Citation{}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Close closes the handle when this store owns it.
func (s *SQLiteStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
