// Package jobstore keeps a SQLite-backed history of synthesis jobs.
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/foldaudio/foldsynth/internal/config"
)

// Job is one recorded synthesis run.
type Job struct {
	ID         string
	SessionID  string
	Text       string
	Frames     int
	Samples    int
	SampleRate int
	OutputPath string
	LatencyMS  int64
	CreatedAt  time.Time
}

// Store wraps the job history database. In ephemeral mode every method is a
// no-op, mirroring a disabled store.
type Store struct {
	db    *sql.DB
	cfg   config.JobStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config.
func Open(ctx context.Context, cfg config.JobStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("job store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    text TEXT,
    frames INTEGER NOT NULL,
    samples INTEGER NOT NULL,
    sample_rate INTEGER NOT NULL,
    output_path TEXT,
    latency_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record writes a job row.
func (s *Store) Record(ctx context.Context, job Job) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, session_id, text, frames, samples, sample_rate, output_path, latency_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, job.Text, job.Frames, job.Samples, job.SampleRate, job.OutputPath, job.LatencyMS,
		job.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// List retrieves up to limit jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, frames, samples, sample_rate, output_path, latency_ms, created_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var created string
		if err := rows.Scan(&j.ID, &j.SessionID, &j.Text, &j.Frames, &j.Samples, &j.SampleRate, &j.OutputPath, &j.LatencyMS, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			j.CreatedAt = ts
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Prune drops the oldest rows beyond the configured max.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil || s.cfg.MaxJobs <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id IN (
		SELECT id FROM jobs ORDER BY created_at DESC LIMIT -1 OFFSET ?
	)`, s.cfg.MaxJobs)
	return err
}
