package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for database/sql.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new database/sql adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Query executes a parameterized query and returns wrapped rows.
func (a *SQLAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &sqlRows{rows: rows}, nil
}

// sqlRows wraps sql.Rows to implement the DBRows interface.
type sqlRows struct {
	rows *sql.Rows
}

// Next advances to the next row.
func (s *sqlRows) Next() bool {
	return s.rows.Next()
}

// Scan copies row values into provided destinations.
func (s *sqlRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

// Err returns any error encountered during iteration.
func (s *sqlRows) Err() error {
	return s.rows.Err()
}

// Close closes the rows iterator.
func (s *sqlRows) Close() error {
	return s.rows.Close()
}
