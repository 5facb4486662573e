package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
	create table if not exists jobs (
		id text primary key not null,
		status text not null,
		created_at text not null,
		completed_at text,
		file_name text not null,
		source_hash text not null default '',
		result_ref text,
		error text,
		progress real not null default 0,
		total_chunks integer,
		processed_chunks integer not null default 0
	);`

const selectJob = `select
	id, status, created_at, completed_at, file_name, source_hash,
	result_ref, error, progress, total_chunks, processed_chunks
	from jobs`

type (
	// SQLiteRepo stores jobs in a SQLite database opened with mattn/go-sqlite3.
	SQLiteRepo struct {
		db  *sql.DB
		now func() time.Time
	}

	rowScanner interface {
		Scan(dest ...any) error
	}
)

var _ Store = SQLiteRepo{}

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db: db, now: time.Now}
}

// EnsureSchema creates the jobs table when missing.
func (r SQLiteRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating jobs table: %w", err)
	}
	return nil
}

func (r SQLiteRepo) Create(ctx context.Context, fileName, sourceHash string) (Job, error) {
	j := newJob(uuid.NewString(), fileName, sourceHash, r.now())

	_, err := r.db.ExecContext(
		ctx,
		"insert into jobs (id, status, created_at, file_name, source_hash) values ($1, $2, $3, $4, $5)",
		j.ID,
		string(j.Status),
		j.CreatedAt.Format(time.RFC3339Nano),
		j.FileName,
		j.SourceHash,
	)
	if err != nil {
		return Job{}, fmt.Errorf("persisting job into sqlite: %w", err)
	}

	return j, nil
}

func (r SQLiteRepo) Get(ctx context.Context, id string) (Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, selectJob+" where id = $1", id))
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func (r SQLiteRepo) SetTotalChunks(ctx context.Context, id string, n int) error {
	return r.update(ctx, id, func(j *Job) error { return j.setTotalChunks(n) })
}

func (r SQLiteRepo) Advance(ctx context.Context, id string, processed int) error {
	return r.update(ctx, id, func(j *Job) error { return j.advance(processed) })
}

func (r SQLiteRepo) Complete(ctx context.Context, id string, resultRef string) error {
	now := r.now()
	return r.update(ctx, id, func(j *Job) error { return j.complete(resultRef, now) })
}

func (r SQLiteRepo) Fail(ctx context.Context, id string, message string) error {
	now := r.now()
	return r.update(ctx, id, func(j *Job) error { return j.fail(message, now) })
}

// update reads the row, applies fn and writes it back in one transaction.
func (r SQLiteRepo) update(ctx context.Context, id string, fn func(*Job) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("updating job %s: begin trx: %w", id, err)
	}

	j, err := scanJob(tx.QueryRowContext(ctx, selectJob+" where id = $1", id))
	if err == nil {
		err = fn(&j)
	}
	if err == nil {
		_, err = tx.ExecContext(ctx, `
			update jobs
			set status = $1, completed_at = $2, result_ref = $3, error = $4,
				progress = $5, total_chunks = $6, processed_chunks = $7
			where id = $8
		`, updateArgs(j, id)...)
		if err != nil {
			err = fmt.Errorf("updating job row: %w", err)
		}
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback update job %s: %w", id, rbErr)
		}
		return fmt.Errorf("updating job %s: %w", id, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("updating job %s: commiting: %w", id, err)
	}
	return nil
}

func updateArgs(j Job, id string) []any {
	var completedAt, resultRef, errMsg, total any
	if j.CompletedAt != nil {
		completedAt = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.ResultRef != "" {
		resultRef = j.ResultRef
	}
	if j.Error != "" {
		errMsg = j.Error
	}
	if j.TotalChunks != nil {
		total = *j.TotalChunks
	}
	return []any{string(j.Status), completedAt, resultRef, errMsg, j.Progress, total, j.ProcessedChunks, id}
}

func scanJob(row rowScanner) (Job, error) {
	var (
		j           Job
		status      string
		createdAt   string
		completedAt sql.NullString
		resultRef   sql.NullString
		errMsg      sql.NullString
		total       sql.NullInt64
	)
	err := row.Scan(
		&j.ID, &status, &createdAt, &completedAt, &j.FileName, &j.SourceHash,
		&resultRef, &errMsg, &j.Progress, &total, &j.ProcessedChunks,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scanning job row: %w", err)
	}

	j.Status = Status(status)
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return Job{}, fmt.Errorf("parsing completed_at: %w", err)
		}
		j.CompletedAt = &at
	}
	j.ResultRef = resultRef.String
	j.Error = errMsg.String
	if total.Valid {
		n := int(total.Int64)
		j.TotalChunks = &n
	}
	return j, nil
}
