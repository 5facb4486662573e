package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		file_name TEXT NOT NULL,
		source_hash TEXT NOT NULL DEFAULT '',
		result_ref TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_chunks INTEGER,
		processed_chunks INTEGER NOT NULL DEFAULT 0
	)`

const pgSelectJob = `SELECT
	id, status, created_at, completed_at, file_name, source_hash,
	result_ref, error, progress, total_chunks, processed_chunks
	FROM jobs WHERE id = $1`

// PgRepo stores jobs in Postgres through a pgx connection pool.
type PgRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PgRepo)(nil)

// NewPgRepo connects to dbURL, pings it and ensures the jobs table exists.
func NewPgRepo(ctx context.Context, dbURL string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}
	return &PgRepo{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (r *PgRepo) Close() {
	r.pool.Close()
}

func (r *PgRepo) Create(ctx context.Context, fileName, sourceHash string) (Job, error) {
	j := newJob(uuid.NewString(), fileName, sourceHash, r.now())
	_, err := r.pool.Exec(ctx,
		"INSERT INTO jobs (id, status, created_at, file_name, source_hash) VALUES ($1, $2, $3, $4, $5)",
		j.ID, string(j.Status), j.CreatedAt, j.FileName, j.SourceHash,
	)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

func (r *PgRepo) Get(ctx context.Context, id string) (Job, error) {
	j, err := pgScanJob(r.pool.QueryRow(ctx, pgSelectJob, id))
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func (r *PgRepo) SetTotalChunks(ctx context.Context, id string, n int) error {
	return r.update(ctx, id, func(j *Job) error { return j.setTotalChunks(n) })
}

func (r *PgRepo) Advance(ctx context.Context, id string, processed int) error {
	return r.update(ctx, id, func(j *Job) error { return j.advance(processed) })
}

func (r *PgRepo) Complete(ctx context.Context, id string, resultRef string) error {
	now := r.now()
	return r.update(ctx, id, func(j *Job) error { return j.complete(resultRef, now) })
}

func (r *PgRepo) Fail(ctx context.Context, id string, message string) error {
	now := r.now()
	return r.update(ctx, id, func(j *Job) error { return j.fail(message, now) })
}

// update locks the row with SELECT ... FOR UPDATE, applies fn and writes back.
func (r *PgRepo) update(ctx context.Context, id string, fn func(*Job) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("update job %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx)

	j, err := pgScanJob(tx.QueryRow(ctx, pgSelectJob+" FOR UPDATE", id))
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if err := fn(&j); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = $2, result_ref = $3, error = $4,
			progress = $5, total_chunks = $6, processed_chunks = $7
		WHERE id = $8`,
		string(j.Status), j.CompletedAt, j.ResultRef, j.Error,
		j.Progress, j.TotalChunks, j.ProcessedChunks, id,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("update job %s: commit: %w", id, err)
	}
	return nil
}

func pgScanJob(row pgx.Row) (Job, error) {
	var (
		j      Job
		status string
	)
	err := row.Scan(
		&j.ID, &status, &j.CreatedAt, &j.CompletedAt, &j.FileName, &j.SourceHash,
		&j.ResultRef, &j.Error, &j.Progress, &j.TotalChunks, &j.ProcessedChunks,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	j.Status = Status(status)
	return j, nil
}
