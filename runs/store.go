package runs

import "context"

// Store persists run records keyed by RunID.
type Store interface {
	// Upsert inserts records, or updates status, conclusion and updated_at of
	// records whose RunID already exists.
	Upsert(ctx context.Context, records ...Record) error
	// Recent returns up to limit records, most recently created first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// JobHistory returns up to limit records of one job, most recent first.
	JobHistory(ctx context.Context, job string, limit int) ([]Record, error)
	// Failures returns up to limit completed failing records, most recent first.
	Failures(ctx context.Context, limit int) ([]Record, error)
	// Close releases resources held by the store.
	Close() error
}
