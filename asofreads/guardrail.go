package asofreads

import (
	"context"
	"errors"
	"fmt"
)

const (
	logMsgOverlayInstalled = "historical snapshot installed for transaction"
	logMsgOverlayCleared   = "pending snapshot install cleared"
	logMsgOverlayDiscarded = "installed snapshot discarded at transaction end"
	logAttrIsolation       = "isolation_level"
	logAttrEndState        = "end_state"
)

// EndState enumerates the terminal outcomes of a transaction.
type EndState int

const (
	// EndCommit ends the transaction by commit.
	EndCommit EndState = iota
	// EndAbort ends the transaction by abort.
	EndAbort
	// EndPrepare ends the transaction by preparing it for two-phase commit.
	// The installed overlay never survives into the prepared state.
	EndPrepare
)

// String returns the end state name for logging.
func (s EndState) String() string {
	switch s {
	case EndCommit:
		return "commit"
	case EndAbort:
		return "abort"
	case EndPrepare:
		return "prepare"
	default:
		return "unknown"
	}
}

type guardState int

const (
	guardNoTransaction guardState = iota
	guardTransactionOpen
	guardEnded
)

// TxnGuard is the per-transaction state machine gating when a synthetic
// snapshot may be installed. One guard is created when a transaction begins
// and discarded when it ends; it is explicitly owned and passed through the
// call chain, never process-wide state.
//
// A guard is bound to the single goroutine driving its transaction; it needs
// no locking because transactions never share guards.
type TxnGuard struct {
	session            Session
	state              guardState
	isolation          IsolationLevel
	subDepth           int
	firstSnapshotFixed bool
	installed          *EffectiveSnapshot
	logger             Logger
}

// TxnGuardOption defines a functional option for configuring a TxnGuard.
type TxnGuardOption func(*TxnGuard) error

// WithTxnGuardLogger sets the logger for the TxnGuard.
func WithTxnGuardLogger(logger Logger) TxnGuardOption {
	return func(g *TxnGuard) error {
		g.logger = logger
		return nil
	}
}

// NewTxnGuard creates a guard bound to the given engine session. The guard
// starts in the no-transaction state; call BeginTransaction when the
// surrounding transaction opens.
func NewTxnGuard(session Session, options ...TxnGuardOption) (*TxnGuard, error) {
	if session == nil {
		return nil, ErrNilEngine
	}

	g := &TxnGuard{session: session}

	for _, option := range options {
		if err := option(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// BeginTransaction transitions the guard into the open state with the given
// isolation level.
func (g *TxnGuard) BeginTransaction(level IsolationLevel) error {
	if g.state == guardTransactionOpen {
		return errors.New("transaction already open")
	}

	g.state = guardTransactionOpen
	g.isolation = level
	g.subDepth = 0
	g.firstSnapshotFixed = false
	g.installed = nil

	return nil
}

// Set is the transaction-scoped install surface: a transaction-local,
// non-persisting settable string. A non-empty value requests an install of the
// encoded snapshot; the empty string clears a pending install.
func (g *TxnGuard) Set(ctx context.Context, snapshotText string) error {
	if snapshotText == "" {
		return g.ClearInstall()
	}

	return g.RequestInstall(ctx, snapshotText)
}

// RequestInstall validates the preconditions, decodes the snapshot text,
// builds the effective snapshot from the ambient base, and installs it as the
// transaction's visibility context.
//
// It is legal only in an open transaction under repeatable read or
// serializable isolation, at subtransaction depth zero, and before the
// transaction's first snapshot is fixed; violations fail, in that order, with
// ErrNotInTransaction, ErrWrongIsolationLevel, ErrInSubtransaction, and
// ErrSnapshotAlreadyFixed. The transaction remains otherwise usable after a
// violation.
//
// Obtaining the ambient base snapshot fixes the transaction's first snapshot,
// an unavoidable side effect, since a base is required to clone from.
func (g *TxnGuard) RequestInstall(ctx context.Context, snapshotText string) error {
	if g.state != guardTransactionOpen {
		return ErrNotInTransaction
	}

	if !g.isolation.UsesTransactionSnapshot() {
		return ErrWrongIsolationLevel
	}

	if g.subDepth > 0 {
		return ErrInSubtransaction
	}

	if g.firstSnapshotFixed {
		return ErrSnapshotAlreadyFixed
	}

	hist, decodeErr := DecodeSnapshot(snapshotText)
	if decodeErr != nil {
		return decodeErr
	}

	base, baseErr := g.session.BaseSnapshot(ctx)
	if baseErr != nil {
		return fmt.Errorf("fetching base snapshot: %w", baseErr)
	}

	// The base snapshot is now fixed engine-side, whatever happens next.
	g.firstSnapshotFixed = true

	effective := BuildEffectiveSnapshot(base, hist)

	if installErr := g.session.InstallOverlay(effective); installErr != nil {
		return installErr
	}

	g.installed = &effective

	if g.logger != nil {
		g.logger.Info(logMsgOverlayInstalled,
			logAttrSnapshot, snapshotText,
			logAttrIsolation, g.isolation.String())
	}

	return nil
}

// ClearInstall clears a pending install without fixing anything. It is
// permitted any time before the transaction's first snapshot is fixed; once
// fixed, clearing fails with ErrSnapshotAlreadyFixed because a fixed snapshot
// cannot be un-fixed.
func (g *TxnGuard) ClearInstall() error {
	if g.firstSnapshotFixed {
		return ErrSnapshotAlreadyFixed
	}

	g.installed = nil

	if g.logger != nil {
		g.logger.Debug(logMsgOverlayCleared)
	}

	return nil
}

// NoteSnapshotTaken records that the transaction took its first snapshot by
// other means, typically by running a query. Any later install request fails
// with ErrSnapshotAlreadyFixed.
func (g *TxnGuard) NoteSnapshotTaken() {
	if g.state == guardTransactionOpen && g.isolation.UsesTransactionSnapshot() {
		g.firstSnapshotFixed = true
	}
}

// EnterSubtransaction increases the nesting depth. Install requests are
// unreachable while the depth is above zero.
func (g *TxnGuard) EnterSubtransaction() error {
	if g.state != guardTransactionOpen {
		return ErrNotInTransaction
	}

	g.subDepth++

	return nil
}

// ExitSubtransaction decreases the nesting depth.
func (g *TxnGuard) ExitSubtransaction() error {
	if g.state != guardTransactionOpen {
		return ErrNotInTransaction
	}

	if g.subDepth == 0 {
		return ErrSubtransactionUnderflow
	}

	g.subDepth--

	return nil
}

// SubtransactionDepth reports the guard's current nesting depth.
func (g *TxnGuard) SubtransactionDepth() int {
	return g.subDepth
}

// Installed returns the currently installed effective snapshot, or nil.
func (g *TxnGuard) Installed() *EffectiveSnapshot {
	return g.installed
}

// End transitions the guard to its terminal state and discards the installed
// snapshot. The snapshot is scope-bound: no reference to it survives the
// transaction, whichever way it ends.
func (g *TxnGuard) End(end EndState) error {
	if g.state != guardTransactionOpen {
		return ErrNotInTransaction
	}

	if g.installed != nil {
		g.session.UninstallOverlay()
		g.installed = nil

		if g.logger != nil {
			g.logger.Debug(logMsgOverlayDiscarded, logAttrEndState, end.String())
		}
	}

	g.state = guardEnded

	return nil
}
