package clipserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryawidjaja/go_clips/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// JobStore persists job state to Postgres so results survive restarts.
// Optional: the server runs in-memory only when DATABASE_URL is unset.
type JobStore struct {
	pool *pgxpool.Pool
}

// ConnectJobStore creates a pgx pool and runs schema migrations.
func ConnectJobStore(ctx context.Context, databaseURL string) (*JobStore, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &JobStore{pool: pool}
	if err := store.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("job store connected", slog.String("addr", config.ConnConfig.Host))
	return store, nil
}

func (s *JobStore) Close() {
	s.pool.Close()
}

func (s *JobStore) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Save upserts a job snapshot.
func (s *JobStore) Save(ctx context.Context, job *engine.Job) error {
	var result []byte
	if job.Result != nil {
		var err error
		result, err = json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, video_id, lang, status, error, result, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   error = EXCLUDED.error,
		   result = EXCLUDED.result,
		   started_at = EXCLUDED.started_at,
		   finished_at = EXCLUDED.finished_at`,
		job.ID, job.VideoID, job.Lang, string(job.Status), job.Error, result,
		job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job snapshot by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*engine.Job, error) {
	var job engine.Job
	var status string
	var result []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, lang, status, error, result, created_at, started_at, finished_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.VideoID, &job.Lang, &status, &job.Error, &result,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	job.Status = engine.JobStatus(status)
	if len(result) > 0 {
		var decoded any
		if json.Unmarshal(result, &decoded) == nil {
			job.Result = decoded
		}
	}
	return &job, nil
}
