package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openJSONL(t *testing.T) *JSONLStore {
	t.Helper()
	s, err := NewJSONLStore(Config{Type: "jsonl", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func TestJSONLRoundTrip(t *testing.T) {
	s := openJSONL(t)
	ctx := context.Background()

	rec := testSession("sess-1", 3)
	rec.Context.DerivedSummary = "yes then no"
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Seed != "test-seed" || got.Context.Seed != "test-seed" {
		t.Errorf("seed mismatch: %+v", got)
	}
	if got.State != "awaiting_choice" {
		t.Errorf("state lost: %q", got.State)
	}
	if got.Context.DerivedSummary != "yes then no" {
		t.Errorf("summary lost: %q", got.Context.DerivedSummary)
	}
	if len(got.Context.History) != 3 {
		t.Fatalf("expected 3 beats, got %d", len(got.Context.History))
	}
	for i, beat := range got.Context.History {
		want := rec.Context.History[i]
		if beat.Choice != want.Choice || beat.NarrativeText != want.NarrativeText ||
			beat.ProviderID != want.ProviderID || !beat.Timestamp.Equal(want.Timestamp) {
			t.Errorf("beat %d mismatch: got %+v, want %+v", i, beat, want)
		}
	}
}

func TestJSONLGetMissing(t *testing.T) {
	s := openJSONL(t)
	if _, err := s.GetSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJSONLAppendOnly(t *testing.T) {
	s := openJSONL(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession("grow", 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSession(ctx, testSession("grow", 5)); err != nil {
		t.Fatal(err)
	}
	// Idempotent re-save of the same snapshot
	if err := s.SaveSession(ctx, testSession("grow", 5)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSession(ctx, "grow")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Context.History) != 5 {
		t.Errorf("expected 5 beats, got %d", len(got.Context.History))
	}

	// Exactly one header line plus one line per beat
	data, err := os.ReadFile(filepath.Join(s.dir, "grow.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1
	if lines != 6 {
		t.Errorf("expected 6 lines (header + 5 beats), got %d", lines)
	}
}

func TestJSONLCountBeatsColdStart(t *testing.T) {
	// A fresh store instance over an existing directory must not rewrite
	// history it did not see being written.
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewJSONLStore(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.SaveSession(ctx, testSession("carry", 3)); err != nil {
		t.Fatal(err)
	}

	s2, err := NewJSONLStore(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.SaveSession(ctx, testSession("carry", 4)); err != nil {
		t.Fatal(err)
	}

	got, err := s2.GetSession(ctx, "carry")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Context.History) != 4 {
		t.Errorf("expected 4 beats after cold-start append, got %d", len(got.Context.History))
	}
}

func TestJSONLListSessions(t *testing.T) {
	s := openJSONL(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession("older", 1)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.SaveSession(ctx, testSession("newer", 2)); err != nil {
		t.Fatal(err)
	}

	infos, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	if infos[0].ID != "newer" || infos[1].ID != "older" {
		t.Errorf("wrong order: %s, %s", infos[0].ID, infos[1].ID)
	}
	if infos[1].BeatCount != 1 {
		t.Errorf("beat count wrong: %+v", infos[1])
	}
}

func TestJSONLSkipsMalformedLines(t *testing.T) {
	s := openJSONL(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession("dirty", 2)); err != nil {
		t.Fatal(err)
	}

	// Simulate a torn write at the end of the file
	f, err := os.OpenFile(filepath.Join(s.dir, "dirty.jsonl"), os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{\"type\":\"beat\",\"seq\":2,\"cho"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := s.GetSession(ctx, "dirty")
	if err != nil {
		t.Fatalf("torn write must not break reads: %v", err)
	}
	if len(got.Context.History) != 2 {
		t.Errorf("expected 2 intact beats, got %d", len(got.Context.History))
	}
}
