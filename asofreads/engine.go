package asofreads

import (
	"context"
)

// Row is one result row as a mapping from column name to value.
type Row = map[string]any

// Rows is an ordered collection of result rows.
type Rows = []Row

// ArgValue is one positional query argument. All arguments are bound as opaque
// text values regardless of logical type; the storage engine coerces as
// needed. This is an explicit limitation of the design, not a defect to
// silently fix: typed binding would change the external interface.
//
// Construct values with TextArg and NullArg.
type ArgValue struct {
	Text string
	Null bool
}

// TextArg builds a non-null text argument.
func TextArg(text string) ArgValue {
	return ArgValue{Text: text}
}

// NullArg builds a NULL argument.
func NullArg() ArgValue {
	return ArgValue{Null: true}
}

// IsolationLevel enumerates transaction isolation levels as reported by the
// storage engine.
type IsolationLevel int

const (
	// ReadUncommitted never fixes a per-transaction snapshot.
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted takes a fresh snapshot per statement.
	ReadCommitted
	// RepeatableRead fixes one snapshot for the whole transaction.
	RepeatableRead
	// Serializable fixes one snapshot for the whole transaction.
	Serializable
)

// UsesTransactionSnapshot reports whether the level fixes one snapshot for the
// whole transaction. Only such levels can meaningfully host an installed
// historical snapshot.
func (l IsolationLevel) UsesTransactionSnapshot() bool {
	return l >= RepeatableRead
}

// String returns the isolation level name for logging.
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "read uncommitted"
	case ReadCommitted:
		return "read committed"
	case RepeatableRead:
		return "repeatable read"
	case Serializable:
		return "serializable"
	default:
		return "unknown"
	}
}

// Session is the per-scope surface consumed from the storage engine: one open
// transaction (or one bounded read call) against which snapshots are fetched,
// overlays are installed, and reads execute.
//
// Implementations own all concurrency control for the underlying read; this
// package takes no locks. A Session must not be shared across goroutines.
type Session interface {
	// BaseSnapshot returns the ambient visibility snapshot for the current
	// scope. Under isolation levels that fix one snapshot per transaction,
	// fetching the base snapshot fixes it, an unavoidable side effect since a
	// base is required to clone from.
	BaseSnapshot(ctx context.Context) (BaseSnapshot, error)

	// InstallOverlay makes the effective snapshot the active visibility
	// context for subsequent reads in this scope. At most one overlay may be
	// installed per scope; a second install fails with
	// ErrOverlayAlreadyInstalled.
	InstallOverlay(effective EffectiveSnapshot) error

	// UninstallOverlay removes the active overlay. It must be executed on
	// every exit path of the installing scope and is safe to call when no
	// overlay is installed.
	UninstallOverlay()

	// ExecuteRead runs one read query under the currently active visibility
	// context and returns all result rows in order.
	ExecuteRead(ctx context.Context, sql string, args []ArgValue) (Rows, error)

	// IsolationLevel reports the current transaction's isolation level.
	IsolationLevel() IsolationLevel

	// SubtransactionDepth reports the current nesting depth, zero at top level.
	SubtransactionDepth() int

	// Close releases the session. Closing uninstalls any remaining overlay.
	Close(ctx context.Context) error
}

// Engine is the storage-engine entry point consumed by the Gateway: it opens
// one independent read session per gateway call.
type Engine interface {
	StartReadSession(ctx context.Context) (Session, error)
}
