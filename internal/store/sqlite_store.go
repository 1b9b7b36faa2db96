package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	logging "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/story"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config Config
}

// Schema version for migrations
const currentSchemaVersion = 1

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout)); err != nil {
		logging.L_warn("sqlite: failed to set busy_timeout", "error", err)
	}

	store := &SQLiteStore{db: db, config: cfg}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logging.L_info("sqlite: store opened", "path", cfg.Path)
	return store, nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, start from scratch
		version = 0
	}

	if version >= currentSchemaVersion {
		logging.L_debug("sqlite: schema up to date", "version", version)
		return nil
	}

	logging.L_info("sqlite: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		logging.L_debug("sqlite: applied migration", "version", i+1)
	}

	return nil
}

// migrateV1 creates the initial schema
func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		state TEXT NOT NULL,
		derived_summary TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS beats (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		choice TEXT NOT NULL,
		narrative TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// SaveSession upserts the session row and rewrites its beats. History is
// append-only in the core, so a full rewrite only ever grows the beat list.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *StoredSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, seed, state, derived_summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			derived_summary = excluded.derived_summary,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Seed, rec.State, rec.Context.DerivedSummary,
		createdAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	// Only insert beats past what is already stored
	var stored int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM beats WHERE session_id = ?", rec.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count beats: %w", err)
	}

	for i := stored; i < len(rec.Context.History); i++ {
		beat := rec.Context.History[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO beats (session_id, seq, choice, narrative, provider_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, string(beat.Choice), beat.NarrativeText, beat.ProviderID,
			beat.Timestamp.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert beat %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.L_debug("sqlite: session saved", "session", rec.ID, "beats", len(rec.Context.History))
	return nil
}

// GetSession retrieves a session and its full history.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*StoredSession, error) {
	rec := &StoredSession{ID: id}
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT seed, state, derived_summary, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&rec.Seed, &rec.State, &rec.Context.DerivedSummary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	rec.Context.Seed = rec.Seed

	rows, err := s.db.QueryContext(ctx, `
		SELECT choice, narrative, provider_id, created_at
		FROM beats WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query beats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var beat story.StoryBeat
		var choice string
		var createdMs int64
		if err := rows.Scan(&choice, &beat.NarrativeText, &beat.ProviderID, &createdMs); err != nil {
			return nil, fmt.Errorf("scan beat: %w", err)
		}
		beat.Choice = story.Choice(choice)
		beat.Timestamp = time.UnixMilli(createdMs)
		rec.Context.History = append(rec.Context.History, beat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rec, nil
}

// ListSessions returns summaries, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.seed, s.state, s.updated_at,
			(SELECT COUNT(*) FROM beats b WHERE b.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updatedAt int64
		if err := rows.Scan(&info.ID, &info.Seed, &info.State, &updatedAt, &info.BeatCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.UpdatedAt = time.Unix(updatedAt, 0)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
