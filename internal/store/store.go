// Package store provides durable storage for story sessions. It is the
// persistence collaborator behind the coordinator's OnSessionUpdated hook:
// the core never blocks on it and never calls it for failed generations.
package store

import (
	"context"
	"time"

	"github.com/didgugoluke/liminal-transit/internal/story"
)

// Store is the interface for session storage backends.
// Implementations: SQLiteStore (primary), JSONLStore (append-only files)
type Store interface {
	// SaveSession upserts a session and its full history.
	SaveSession(ctx context.Context, rec *StoredSession) error

	// GetSession retrieves a session by ID. Returns ErrNotFound if absent.
	GetSession(ctx context.Context, id string) (*StoredSession, error)

	// ListSessions returns lightweight summaries, most recently updated first.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// Lifecycle
	Close() error
	Migrate() error
}

// StoredSession is a session snapshot in storage.
type StoredSession struct {
	ID        string
	Seed      string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Context   story.StoryContext
}

// SessionInfo is a lightweight session summary for listing.
type SessionInfo struct {
	ID        string
	Seed      string
	State     string
	BeatCount int
	UpdatedAt time.Time
}

// Config configures the storage backend.
type Config struct {
	Type string `json:"type"` // "sqlite" or "jsonl"
	Path string `json:"path"` // Database file path or sessions directory

	// SQLite specific
	BusyTimeout int `json:"busyTimeout"` // Busy timeout in ms (default: 5000)
}

// NewStore creates a storage backend based on config.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "jsonl":
		return NewJSONLStore(cfg)
	default:
		return NewSQLiteStore(cfg)
	}
}
