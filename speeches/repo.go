package speeches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sqliteResultsSchema = `
	create table if not exists results (
		job_id text primary key not null,
		segment_count integer not null,
		created_at text not null
	);

	create table if not exists segments (
		id integer not null,
		job_id text not null,
		speaker text not null,
		text text not null,
		start_s real not null,
		end_s real not null,
		primary key (id, job_id)
	);

	create table if not exists words (
		id integer not null,
		segment_id integer not null,
		job_id text not null,
		text text not null,
		start_s real not null,
		end_s real not null,
		primary key (id, segment_id, job_id)
	);`

// rows per multi-value insert, below SQLite's bound parameter limit.
const insertBatchRows = 400

const sqliteRefPrefix = "sqlite:"

type (
	// SQLiteResults stores timelines in the segments and words tables.
	SQLiteResults struct {
		db *sql.DB
	}
)

var _ ResultStore = SQLiteResults{}

func NewSQLiteResults(db *sql.DB) SQLiteResults {
	return SQLiteResults{db}
}

func (r SQLiteResults) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteResultsSchema); err != nil {
		return fmt.Errorf("creating result tables: %w", err)
	}
	return nil
}

// Save writes the whole timeline in one transaction. The results primary key
// rejects a second save for the same job.
func (r SQLiteResults) Save(ctx context.Context, jobID string, segments []AlignedSegment) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("inserting result: begin trx: %w", err)
	}

	err = r.insertResult(ctx, tx, jobID, segments)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return "", fmt.Errorf("rollback insert result: %w", rbErr)
		}
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("inserting result: commiting: %w", err)
	}
	return sqliteRefPrefix + jobID, nil
}

func (r SQLiteResults) insertResult(ctx context.Context, tx *sql.Tx, jobID string, segments []AlignedSegment) error {
	_, err := tx.ExecContext(ctx,
		"insert into results (job_id, segment_count, created_at) values ($1, $2, $3)",
		jobID, len(segments), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting result row: %w", err)
	}

	segmentRows := make([][]any, len(segments))
	var wordRows [][]any
	for n, s := range segments {
		segmentRows[n] = []any{n, jobID, s.Speaker, s.Text, s.Start, s.End}
		for m, w := range s.Words {
			wordRows = append(wordRows, []any{m, n, jobID, w.Text, w.Start, w.End})
		}
	}

	err = insertRows(ctx, tx, "insert into segments (id, job_id, speaker, text, start_s, end_s) values ", segmentRows)
	if err != nil {
		return fmt.Errorf("inserting segments: %w", err)
	}
	err = insertRows(ctx, tx, "insert into words (id, segment_id, job_id, text, start_s, end_s) values ", wordRows)
	if err != nil {
		return fmt.Errorf("inserting words: %w", err)
	}
	return nil
}

// insertRows issues multi-value inserts of equally sized rows in batches.
func insertRows(ctx context.Context, tx *sql.Tx, head string, rows [][]any) error {
	for len(rows) > 0 {
		batch := rows[:min(len(rows), insertBatchRows)]
		rows = rows[len(batch):]

		var qb strings.Builder
		qb.WriteString(head)
		args := make([]any, 0, len(batch)*len(batch[0]))
		for n, row := range batch {
			if n > 0 {
				qb.WriteString(", ")
			}
			qb.WriteString("(")
			for i := range row {
				if i > 0 {
					qb.WriteString(", ")
				}
				fmt.Fprintf(&qb, "$%d", len(args)+i+1)
			}
			qb.WriteString(")")
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, qb.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

func (r SQLiteResults) Load(ctx context.Context, ref string) ([]AlignedSegment, error) {
	jobID, ok := strings.CutPrefix(ref, sqliteRefPrefix)
	if !ok {
		return nil, fmt.Errorf("loading result: unknown ref %q", ref)
	}

	var count int
	err := r.db.QueryRowContext(ctx, "select segment_count from results where job_id = $1", jobID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("loading result %s: %w", jobID, err)
	}

	segments := make([]AlignedSegment, 0, count)
	rows, err := r.db.QueryContext(ctx,
		"select speaker, text, start_s, end_s from segments where job_id = $1 order by id", jobID)
	if err != nil {
		return nil, fmt.Errorf("loading segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		s := AlignedSegment{Words: []Word{}}
		if err := rows.Scan(&s.Speaker, &s.Text, &s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading segments: %w", err)
	}

	wordRows, err := r.db.QueryContext(ctx,
		"select segment_id, text, start_s, end_s from words where job_id = $1 order by segment_id, id", jobID)
	if err != nil {
		return nil, fmt.Errorf("loading words: %w", err)
	}
	defer wordRows.Close()
	for wordRows.Next() {
		var (
			segmentID int
			w         Word
		)
		if err := wordRows.Scan(&segmentID, &w.Text, &w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("scanning word: %w", err)
		}
		if segmentID < 0 || segmentID >= len(segments) {
			return nil, fmt.Errorf("word references missing segment %d", segmentID)
		}
		segments[segmentID].Words = append(segments[segmentID].Words, w)
	}
	if err := wordRows.Err(); err != nil {
		return nil, fmt.Errorf("loading words: %w", err)
	}

	return segments, nil
}

func (r SQLiteResults) Discard(ctx context.Context, ref string) error {
	jobID, ok := strings.CutPrefix(ref, sqliteRefPrefix)
	if !ok {
		return fmt.Errorf("discarding result: unknown ref %q", ref)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("discarding result: begin trx: %w", err)
	}
	for _, table := range []string{"words", "segments", "results"} {
		if _, err := tx.ExecContext(ctx, "delete from "+table+" where job_id = $1", jobID); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback discard result: %w", rbErr)
			}
			return fmt.Errorf("discarding result %s from %s: %w", jobID, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("discarding result: commiting: %w", err)
	}
	return nil
}
