package adapters

import "context"

// DBAdapter defines the read-only database surface needed by the as-of
// gateway. Arguments bind positionally to $1, $2, ... placeholders.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
