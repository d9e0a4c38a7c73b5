package memoryengine

import (
	"context"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

// Session is the asofreads.Session implementation over one engine
// transaction. Like the transaction, it is bound to a single goroutine.
type Session struct {
	txn     *Txn
	ownsTxn bool
}

var _ asofreads.Session = (*Session)(nil)

// BaseSnapshot returns the ambient visibility snapshot. Under repeatable read
// and serializable isolation the first snapshot taken is fixed for the whole
// transaction and returned again on every later call; under read committed a
// fresh snapshot is taken per call.
func (s *Session) BaseSnapshot(_ context.Context) (asofreads.BaseSnapshot, error) {
	if s.txn.done {
		return asofreads.BaseSnapshot{}, ErrTransactionDone
	}

	e := s.txn.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	return s.ambientSnapshotLocked(), nil
}

func (s *Session) ambientSnapshotLocked() asofreads.BaseSnapshot {
	if s.txn.isolation.UsesTransactionSnapshot() {
		if s.txn.fixed == nil {
			snapshot := s.txn.engine.takeSnapshotLocked(s.txn)
			s.txn.fixed = &snapshot
		}

		return *s.txn.fixed
	}

	return s.txn.engine.takeSnapshotLocked(s.txn)
}

// InstallOverlay makes the effective snapshot the active visibility context
// for subsequent reads in this transaction. At most one overlay per
// transaction; the installed value is immutable.
func (s *Session) InstallOverlay(effective asofreads.EffectiveSnapshot) error {
	if s.txn.done {
		return ErrTransactionDone
	}

	if s.txn.overlay != nil {
		return asofreads.ErrOverlayAlreadyInstalled
	}

	s.txn.overlay = &effective

	return nil
}

// UninstallOverlay removes the active overlay. It is safe to call when no
// overlay is installed.
func (s *Session) UninstallOverlay() {
	s.txn.overlay = nil
}

// ExecuteRead evaluates one read query under the active visibility context:
// the installed overlay if present, otherwise the ambient snapshot.
func (s *Session) ExecuteRead(ctx context.Context, sql string, args []asofreads.ArgValue) (asofreads.Rows, error) {
	if s.txn.done {
		return nil, ErrTransactionDone
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, parseErr := parseReadQuery(sql)
	if parseErr != nil {
		return nil, parseErr
	}

	e := s.txn.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	var view snapshotView
	if s.txn.overlay != nil {
		view = *s.txn.overlay
	} else {
		view = s.ambientSnapshotLocked()
	}

	versions := e.scanTableLocked(query.table, view, s.txn.id)
	s.txn.commandID++

	return query.evaluate(versions, args)
}

// IsolationLevel reports the transaction's isolation level.
func (s *Session) IsolationLevel() asofreads.IsolationLevel {
	return s.txn.isolation
}

// SubtransactionDepth reports the transaction's current nesting depth.
func (s *Session) SubtransactionDepth() int {
	return s.txn.subDepth
}

// Close releases the session. A session that owns its transaction aborts it;
// a session over a caller-managed transaction only drops the overlay.
func (s *Session) Close(_ context.Context) error {
	s.txn.overlay = nil

	if s.ownsTxn && !s.txn.done {
		return s.txn.Abort()
	}

	return nil
}
