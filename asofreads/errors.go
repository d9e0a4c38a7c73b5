package asofreads

import (
	"errors"
)

var (
	// ErrMalformedSnapshot is returned when a snapshot text encoding is invalid:
	// missing or non-numeric fields, xmin greater than xmax, out-of-range or
	// duplicate xip entries, or extra segments. Never retried.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrNotInTransaction is returned when an install is requested outside an
	// open transaction.
	ErrNotInTransaction = errors.New("snapshot install requires an open transaction")

	// ErrWrongIsolationLevel is returned when an install is requested under an
	// isolation level that does not fix one snapshot per transaction.
	ErrWrongIsolationLevel = errors.New("snapshot install requires repeatable read or serializable isolation")

	// ErrInSubtransaction is returned when an install is requested while a
	// nested transaction scope is open.
	ErrInSubtransaction = errors.New("snapshot install not allowed inside a subtransaction")

	// ErrSnapshotAlreadyFixed is returned when the transaction's first snapshot
	// has already been taken, either by a previous install or by running a query.
	ErrSnapshotAlreadyFixed = errors.New("transaction snapshot is already fixed")

	// ErrNotReadOnly is returned before any execution attempt when the statement
	// does not start with a read-query token.
	ErrNotReadOnly = errors.New("only read-only queries (SELECT or WITH) are allowed")

	// ErrExecutionFailed wraps errors reported by the storage engine while
	// executing a read. The overlay is guaranteed uninstalled regardless.
	ErrExecutionFailed = errors.New("read execution failed")

	// ErrUnexpectedResultShape signals an internal-invariant failure in the
	// result aggregation step. It should not occur in a correct integration and
	// is surfaced loudly rather than masked.
	ErrUnexpectedResultShape = errors.New("unexpected result shape")

	// ErrOverlayAlreadyInstalled is returned when a second overlay install is
	// attempted within one scope. At most one effective snapshot may ever be
	// installed per transaction, and it is immutable once installed.
	ErrOverlayAlreadyInstalled = errors.New("an overlay snapshot is already installed in this scope")

	// ErrOutOfOrderEvent is returned when a commit-stream event arrives with a
	// log position at or before the last processed one. Reordering corrupts the
	// in-flight bookkeeping irrecoverably, so it is a protocol violation, not a
	// retryable condition.
	ErrOutOfOrderEvent = errors.New("commit stream event out of log order")

	// ErrDuplicateBegin is returned when a begin event arrives for a
	// transaction id that is already in flight.
	ErrDuplicateBegin = errors.New("begin event for transaction already in flight")

	// ErrNilEngine is returned when a gateway is constructed without an engine.
	ErrNilEngine = errors.New("nil storage engine supplied")

	// ErrSubtransactionUnderflow is returned when a subtransaction exit has no
	// matching enter.
	ErrSubtransactionUnderflow = errors.New("subtransaction exit without matching enter")

	// ErrTransactionEnded is returned when an operation is attempted on a
	// transaction that already reached a terminal state.
	ErrTransactionEnded = errors.New("transaction already ended")
)
