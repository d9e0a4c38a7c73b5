// Package adapters provides database abstraction for the Postgres as-of
// gateway.
//
// The gateway only ever reads, so the adapter surface is a single
// parameterized Query operation. Three implementations cover the common
// Postgres stacks: pgxpool, database/sql, and sqlx.
package adapters
