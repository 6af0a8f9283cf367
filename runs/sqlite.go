package runs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT    NOT NULL UNIQUE,
	workflow_name TEXT    NOT NULL DEFAULT '',
	job_name      TEXT    NOT NULL DEFAULT '',
	status        TEXT    NOT NULL DEFAULT '',
	conclusion    TEXT    NOT NULL DEFAULT '',
	created_at    INTEGER,
	updated_at    INTEGER,
	commit_sha    TEXT    NOT NULL DEFAULT '',
	branch        TEXT    NOT NULL DEFAULT '',
	url           TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_created_at ON workflow_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_job_created_at ON workflow_runs (job_name, created_at DESC);
`

const upsertQuery = `
INSERT INTO workflow_runs (
	run_id, workflow_name, job_name, status, conclusion, created_at, updated_at, commit_sha, branch, url
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	status = excluded.status,
	conclusion = excluded.conclusion,
	updated_at = excluded.updated_at
`

const selectColumns = `run_id, workflow_name, job_name, status, conclusion, created_at, updated_at, commit_sha, branch, url`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at path and applies the
// schema. Use ":memory:" for a throwaway database.
//
// The connection pool is limited to a single connection: SQLite allows one
// writer at a time, and an in-memory database exists per connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes records in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		r = r.Normalize()
		if r.RunID == "" {
			tx.Rollback()
			return fmt.Errorf("%w: missing run_id", ErrMalformedRecord)
		}
		_, err := stmt.ExecContext(ctx,
			r.RunID,
			r.WorkflowName,
			r.JobName,
			r.Status,
			r.Conclusion,
			toUnix(r.CreatedAt),
			toUnix(r.UpdatedAt),
			r.CommitSHA,
			r.Branch,
			r.URL,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert run %s: %w", r.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit records, most recently created first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM workflow_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`
	return s.query(ctx, query, limitArg(limit))
}

// JobHistory returns up to limit records of job, most recent first.
func (s *SQLiteStore) JobHistory(ctx context.Context, job string, limit int) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM workflow_runs
		WHERE job_name = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`
	return s.query(ctx, query, job, limitArg(limit))
}

// Failures returns up to limit completed failing records, most recent first.
func (s *SQLiteStore) Failures(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM workflow_runs
		WHERE status = ? AND conclusion = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`
	return s.query(ctx, query, StatusCompleted, ConclusionFailure, limitArg(limit))
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                    Record
			createdAt, updatedAt sql.NullInt64
		)
		err := rows.Scan(
			&r.RunID,
			&r.WorkflowName,
			&r.JobName,
			&r.Status,
			&r.Conclusion,
			&createdAt,
			&updatedAt,
			&r.CommitSHA,
			&r.Branch,
			&r.URL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = fromUnix(createdAt)
		r.UpdatedAt = fromUnix(updatedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

// limitArg maps a non-positive limit to SQLite's "no limit".
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func toUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}
