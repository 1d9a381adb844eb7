package jobstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/foldaudio/foldsynth/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.JobStoreConfig) *Store {
	t.Helper()
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEphemeralStoreIsNoOp(t *testing.T) {
	store := openStore(t, config.JobStoreConfig{RetentionMode: "ephemeral"})

	err := store.Record(context.Background(), Job{ID: "job-1", Frames: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("ephemeral store should retain nothing, got %d jobs", len(jobs))
	}
}

func TestRecordAndList(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "persistent",
		MaxJobs:       100,
	}
	store := openStore(t, cfg)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		job := Job{
			ID:         id,
			SessionID:  "session-1",
			Text:       "hello there",
			Frames:     40,
			Samples:    13440,
			SampleRate: 24000,
			OutputPath: "/tmp/" + id + ".wav",
			LatencyMS:  1200,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Record(context.Background(), job); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	jobs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	// Newest first.
	if jobs[0].ID != "job-c" || jobs[2].ID != "job-a" {
		t.Fatalf("unexpected order: %s, %s, %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
	got := jobs[0]
	if got.SessionID != "session-1" || got.Frames != 40 || got.Samples != 13440 || got.SampleRate != 24000 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.LatencyMS != 1200 || got.OutputPath != "/tmp/job-c.wav" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestListHonorsLimit(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "persistent",
	}
	store := openStore(t, cfg)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := Job{
			ID:        "job-" + string(rune('a'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Record(context.Background(), job); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	jobs, err := store.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "persistent",
		MaxJobs:       1,
	}
	store := openStore(t, cfg)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		job := Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Record(context.Background(), job); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	if err := store.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	jobs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "new" {
		t.Fatalf("expected only the newest job to survive, got %+v", jobs)
	}
}

func TestRecordStampsCreatedAt(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "persistent",
	}
	store := openStore(t, cfg)
	fixed := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)
	store.clock = func() time.Time { return fixed }

	if err := store.Record(context.Background(), Job{ID: "stamped"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	jobs, err := store.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if !jobs[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected created_at %v, got %v", fixed, jobs[0].CreatedAt)
	}
}
