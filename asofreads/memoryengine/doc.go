// Package memoryengine provides an embedded in-memory MVCC storage engine
// implementing the asofreads engine interfaces.
//
// Tuples are stored as version chains with per-version xmin/xmax visibility
// information in an ordered in-memory tree; updates append a new version and
// mark the previous one deleted rather than overwriting it, so historical
// snapshots keep seeing the old data. The engine assigns transaction ids
// monotonically, maintains a commit log for visibility checks, and can report
// begin/commit/abort events to an observer, which makes it a convenient
// stand-in for the external commit-event subscription when feeding a Tailer
// in tests.
//
// Reads execute through a deliberately minimal query surface:
//
//	SELECT <columns|*> FROM <table>
//	    [WHERE <column> = <$n | 'literal'>]
//	    [ORDER BY <column> [ASC|DESC]]
//
// General SQL parsing and planning are out of scope; this is an embedded
// engine for bounded key-value-shaped reads, not a SQL database.
package memoryengine
