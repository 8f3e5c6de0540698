// Package prefs stores scalar user preferences and the mock-poll tally in
// SQLite. Everything is last-write-wins; there is one preferences row set
// per device.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
)

const prefsSchemaVersion = 1

// Preference keys.
const (
	keyLanguage = "language"
	keyDarkMode = "dark_mode"
	keyHasVoted = "has_voted"

	keyVotesCoalitionA = "votes_coalition_a"
	keyVotesMovementB  = "votes_movement_b"
	keyVotesAllianceC  = "votes_alliance_c"
)

// Seed tallies shown before anyone votes, matching the community
// simulation's starting numbers.
const (
	seedCoalitionA = 120
	seedMovementB  = 95
	seedAllianceC  = 78
)

// Coalition identifies one mock-poll choice.
type Coalition string

const (
	CoalitionA Coalition = "coalitionA"
	MovementB  Coalition = "movementB"
	AllianceC  Coalition = "allianceC"
)

// ErrAlreadyVoted is returned by Vote after the device has voted once.
var ErrAlreadyVoted = errors.New("prefs: already voted")

// PollTally is the current mock-poll state.
type PollTally struct {
	CoalitionA int  `json:"coalitionA"`
	MovementB  int  `json:"movementB"`
	AllianceC  int  `json:"allianceC"`
	HasVoted   bool `json:"hasVoted"`
}

// Store is the preferences store.
type Store struct {
	db   *sql.DB
	owns bool
}

// New opens (or creates) a preference store at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, owns: true}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	L_info("prefs: store opened", "path", path)
	return s, nil
}

// NewFromDB wraps an existing handle; Close becomes a no-op.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM prefs_schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}
	if version >= prefsSchemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS prefs_schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO prefs_schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err = s.db.Exec(schema, time.Now().Unix())
	return err
}

func (s *Store) get(ctx context.Context, key, fallback string) string {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM prefs WHERE key = ?", key).Scan(&value)
	if err != nil {
		return fallback
	}
	return value
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO prefs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (s *Store) getInt(ctx context.Context, key string, fallback int) int {
	n, err := strconv.Atoi(s.get(ctx, key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return n
}

// Language returns the UI language, defaulting to English.
func (s *Store) Language(ctx context.Context) provider.Language {
	lang := provider.Language(s.get(ctx, keyLanguage, string(provider.LangEnglish)))
	if !lang.Valid() {
		return provider.LangEnglish
	}
	return lang
}

// SetLanguage stores the UI language; unknown codes are rejected.
func (s *Store) SetLanguage(ctx context.Context, lang provider.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("prefs: unknown language %q", lang)
	}
	return s.set(ctx, keyLanguage, string(lang))
}

// DarkMode returns the dark-mode flag, defaulting to false.
func (s *Store) DarkMode(ctx context.Context) bool {
	return s.get(ctx, keyDarkMode, "false") == "true"
}

// SetDarkMode stores the dark-mode flag.
func (s *Store) SetDarkMode(ctx context.Context, on bool) error {
	return s.set(ctx, keyDarkMode, strconv.FormatBool(on))
}

// HasVoted reports whether this device already voted in the mock poll.
func (s *Store) HasVoted(ctx context.Context) bool {
	return s.get(ctx, keyHasVoted, "false") == "true"
}

// Poll returns the current mock-poll tallies, seeded before any vote.
func (s *Store) Poll(ctx context.Context) PollTally {
	return PollTally{
		CoalitionA: s.getInt(ctx, keyVotesCoalitionA, seedCoalitionA),
		MovementB:  s.getInt(ctx, keyVotesMovementB, seedMovementB),
		AllianceC:  s.getInt(ctx, keyVotesAllianceC, seedAllianceC),
		HasVoted:   s.HasVoted(ctx),
	}
}

// Vote records one vote for a coalition and marks the device as having
// voted. The second and later votes return ErrAlreadyVoted, including under
// concurrent calls: the flag flip is a single conditional upsert, so only
// one caller can win it, and the tally increment commits in the same
// transaction.
func (s *Store) Vote(ctx context.Context, c Coalition) (PollTally, error) {
	var key string
	var seed int
	switch c {
	case CoalitionA:
		key, seed = keyVotesCoalitionA, seedCoalitionA
	case MovementB:
		key, seed = keyVotesMovementB, seedMovementB
	case AllianceC:
		key, seed = keyVotesAllianceC, seedAllianceC
	default:
		return s.Poll(ctx), fmt.Errorf("prefs: unknown coalition %q", c)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.Poll(ctx), err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO prefs (key, value) VALUES (?, 'true') ON CONFLICT(key) DO UPDATE SET value = 'true' WHERE prefs.value != 'true'",
		keyHasVoted)
	if err != nil {
		return s.Poll(ctx), err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return s.Poll(ctx), ErrAlreadyVoted
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO prefs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = CAST(prefs.value + 1 AS TEXT)",
		key, strconv.Itoa(seed+1))
	if err != nil {
		return s.Poll(ctx), err
	}
	if err := tx.Commit(); err != nil {
		return s.Poll(ctx), err
	}
	return s.Poll(ctx), nil
}

// Close closes the handle when this store owns it.
func (s *Store) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}
