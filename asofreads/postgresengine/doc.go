// Package postgresengine provides the Postgres-backed as-of read gateway.
//
// Postgres cannot install an arbitrary client-supplied snapshot, so the
// overlay installation happens server-side in a companion extension function
// (asof_execute by default) that clones the transaction snapshot, overrides
// its visibility fields, and pushes it for the duration of one query. This
// package is the Go client for that function: it validates and canonicalizes
// the snapshot text, enforces the read-only rule before the server is ever
// touched, wraps the user query in a json_agg aggregate so the result arrives
// as a single jsonb document, binds all arguments as text, and decodes the
// document into rows.
//
// Three constructors cover the common Postgres stacks:
//   - NewGatewayFromPGXPool for pgxpool.Pool
//   - NewGatewayFromSQLDB for database/sql
//   - NewGatewayFromSQLX for sqlx.DB
package postgresengine
