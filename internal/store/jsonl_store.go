package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	logging "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/story"
)

// JSONLStore implements Store using append-only JSONL session files plus a
// sessions.json index. One file per session: a header record first, then one
// beat record per story beat.
type JSONLStore struct {
	dir    string
	config Config

	mu      sync.Mutex
	written map[string]int // session id -> beats already on disk
}

// recordType identifies the type of a JSONL line.
type recordType string

const (
	recordTypeSession recordType = "session"
	recordTypeBeat    recordType = "beat"
)

type sessionHeader struct {
	Type      recordType `json:"type"`
	ID        string     `json:"id"`
	Seed      string     `json:"seed"`
	Timestamp time.Time  `json:"timestamp"`
}

type beatRecord struct {
	Type       recordType `json:"type"`
	Seq        int        `json:"seq"`
	Choice     string     `json:"choice"`
	Narrative  string     `json:"narrative"`
	ProviderID string     `json:"providerId"`
	Timestamp  time.Time  `json:"timestamp"`
}

// indexEntry is one row of sessions.json.
type indexEntry struct {
	ID             string `json:"id"`
	Seed           string `json:"seed"`
	State          string `json:"state"`
	DerivedSummary string `json:"derivedSummary,omitempty"`
	BeatCount      int    `json:"beatCount"`
	UpdatedAt      int64  `json:"updatedAt"` // Unix ms
}

// NewJSONLStore creates a new JSONL store rooted at cfg.Path.
func NewJSONLStore(cfg Config) (*JSONLStore, error) {
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	logging.L_info("jsonl_store: opened", "path", cfg.Path)
	return &JSONLStore{
		dir:     cfg.Path,
		config:  cfg,
		written: make(map[string]int),
	}, nil
}

func (s *JSONLStore) sessionFile(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

func (s *JSONLStore) indexFile() string {
	return filepath.Join(s.dir, "sessions.json")
}

// SaveSession appends any beats not yet on disk and refreshes the index.
func (s *JSONLStore) SaveSession(ctx context.Context, rec *StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionFile(rec.ID)
	written, ok := s.written[rec.ID]
	if !ok {
		var err error
		written, err = s.countBeats(path)
		if err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if written == 0 {
		header := sessionHeader{
			Type:      recordTypeSession,
			ID:        rec.ID,
			Seed:      rec.Seed,
			Timestamp: time.Now(),
		}
		if err := enc.Encode(header); err != nil {
			return fmt.Errorf("write session header: %w", err)
		}
	}

	for i := written; i < len(rec.Context.History); i++ {
		beat := rec.Context.History[i]
		line := beatRecord{
			Type:       recordTypeBeat,
			Seq:        i,
			Choice:     string(beat.Choice),
			Narrative:  beat.NarrativeText,
			ProviderID: beat.ProviderID,
			Timestamp:  beat.Timestamp,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write beat %d: %w", i, err)
		}
	}
	s.written[rec.ID] = len(rec.Context.History)

	if err := s.updateIndex(rec); err != nil {
		return err
	}

	logging.L_debug("jsonl_store: session saved", "session", rec.ID, "beats", len(rec.Context.History))
	return nil
}

// countBeats counts beat records already present in a session file.
// A header line is not a beat. Missing file means zero.
func (s *JSONLStore) countBeats(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var probe struct {
			Type recordType `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &probe); err != nil {
			continue
		}
		if probe.Type == recordTypeBeat {
			count++
		}
	}
	return count, scanner.Err()
}

// updateIndex rewrites sessions.json with the session's current summary.
func (s *JSONLStore) updateIndex(rec *StoredSession) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	index[rec.ID] = &indexEntry{
		ID:             rec.ID,
		Seed:           rec.Seed,
		State:          rec.State,
		DerivedSummary: rec.Context.DerivedSummary,
		BeatCount:      len(rec.Context.History),
		UpdatedAt:      time.Now().UnixMilli(),
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexFile(), data, 0640)
}

func (s *JSONLStore) loadIndex() (map[string]*indexEntry, error) {
	index := make(map[string]*indexEntry)
	data, err := os.ReadFile(s.indexFile())
	if os.IsNotExist(err) {
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return index, nil
}

// GetSession reads a session file back into a snapshot.
func (s *JSONLStore) GetSession(ctx context.Context, id string) (*StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.sessionFile(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	rec := &StoredSession{ID: id}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var probe struct {
			Type recordType `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &probe); err != nil {
			logging.L_warn("jsonl_store: skipping malformed line", "session", id, "error", err)
			continue
		}

		switch probe.Type {
		case recordTypeSession:
			var header sessionHeader
			if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
				return nil, fmt.Errorf("parse session header: %w", err)
			}
			rec.Seed = header.Seed
			rec.Context.Seed = header.Seed
			rec.CreatedAt = header.Timestamp
		case recordTypeBeat:
			var line beatRecord
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				return nil, fmt.Errorf("parse beat record: %w", err)
			}
			rec.Context.History = append(rec.Context.History, story.StoryBeat{
				Choice:        story.Choice(line.Choice),
				NarrativeText: line.Narrative,
				ProviderID:    line.ProviderID,
				Timestamp:     line.Timestamp,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// State and summary live in the index
	index, err := s.loadIndex()
	if err == nil {
		if entry, ok := index[id]; ok {
			rec.State = entry.State
			rec.Context.DerivedSummary = entry.DerivedSummary
			rec.UpdatedAt = time.UnixMilli(entry.UpdatedAt)
		}
	}

	return rec, nil
}

// ListSessions returns index entries, most recently updated first.
func (s *JSONLStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(index))
	for _, entry := range index {
		infos = append(infos, SessionInfo{
			ID:        entry.ID,
			Seed:      entry.Seed,
			State:     entry.State,
			BeatCount: entry.BeatCount,
			UpdatedAt: time.UnixMilli(entry.UpdatedAt),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Migrate is a no-op for the JSONL backend.
func (s *JSONLStore) Migrate() error { return nil }

// Close is a no-op; files are opened per operation.
func (s *JSONLStore) Close() error { return nil }
