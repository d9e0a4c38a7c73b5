package memoryengine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tidwall/btree"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

// firstXid is the first transaction id assigned by the engine; id 0 is
// reserved as invalid and lower ids are kept free for frozen markers.
const firstXid asofreads.TransactionID = 3

var (
	// ErrTransactionDone is returned when a write or commit is attempted on a
	// transaction that already committed or aborted.
	ErrTransactionDone = errors.New("transaction already committed or aborted")

	// ErrSubtransactionOpen is returned when a transaction tries to end while
	// a subtransaction scope is still open.
	ErrSubtransactionOpen = errors.New("subtransaction scope still open")
)

type txStatus int

const (
	statusInProgress txStatus = iota
	statusCommitted
	statusAborted
)

// tupleVersion is one version in a tuple's version chain. xmin is the
// inserting transaction, xmax the deleting one (0 while live). Updates append
// a new version and stamp the old version's xmax, never overwrite.
type tupleVersion struct {
	table string
	key   string
	cols  map[string]any
	xmin  asofreads.TransactionID
	xmax  asofreads.TransactionID
}

// versionLess orders the tree by (table, key, xmin descending) so a scan
// visits each key's newest version first.
func versionLess(a, b *tupleVersion) bool {
	if a.table != b.table {
		return a.table < b.table
	}
	if a.key != b.key {
		return a.key < b.key
	}

	return a.xmin > b.xmin
}

// snapshotView is the visibility surface shared by ambient and effective
// snapshots.
type snapshotView interface {
	XidVisible(xid asofreads.TransactionID) bool
}

// Engine is an embedded multi-version storage engine. All state is guarded by
// one mutex; transactions and sessions from multiple goroutines may use the
// same engine concurrently, but an individual Txn or Session belongs to one
// goroutine.
type Engine struct {
	mu         sync.Mutex
	nextXid    asofreads.TransactionID
	status     map[asofreads.TransactionID]txStatus
	inProgress map[asofreads.TransactionID]struct{}
	versions   *btree.BTreeG[*tupleVersion]
	position   asofreads.LogPosition
	observer   func(asofreads.Event)
}

// EngineOption defines a functional option for configuring an Engine.
type EngineOption func(*Engine) error

// WithEventObserver registers a callback receiving a begin/commit/abort event
// for every transaction lifecycle change, in strict log order with increasing
// positions. The callback runs synchronously under the engine lock and must
// not call back into the engine.
func WithEventObserver(observer func(asofreads.Event)) EngineOption {
	return func(e *Engine) error {
		e.observer = observer
		return nil
	}
}

// NewEngine creates an empty in-memory engine with optional configuration.
func NewEngine(options ...EngineOption) (*Engine, error) {
	e := &Engine{
		nextXid:    firstXid,
		status:     make(map[asofreads.TransactionID]txStatus),
		inProgress: make(map[asofreads.TransactionID]struct{}),
		versions:   btree.NewBTreeG(versionLess),
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Begin starts a transaction under the given isolation level, assigns it the
// next transaction id, and emits a begin event.
func (e *Engine) Begin(level asofreads.IsolationLevel) *Txn {
	e.mu.Lock()
	defer e.mu.Unlock()

	xid := e.nextXid
	e.nextXid++
	e.status[xid] = statusInProgress
	e.inProgress[xid] = struct{}{}

	e.emitLocked(asofreads.BuildBeginEvent(xid, e.nextPositionLocked()))

	return &Txn{engine: e, id: xid, isolation: level}
}

// StartReadSession opens an independent read session for one bounded gateway
// call, backed by a fresh read-committed transaction that is aborted on Close.
func (e *Engine) StartReadSession(_ context.Context) (asofreads.Session, error) {
	txn := e.Begin(asofreads.ReadCommitted)

	return &Session{txn: txn, ownsTxn: true}, nil
}

var _ asofreads.Engine = (*Engine)(nil)

func (e *Engine) nextPositionLocked() asofreads.LogPosition {
	e.position++
	return e.position
}

func (e *Engine) emitLocked(event asofreads.Event) {
	if e.observer != nil {
		e.observer(event)
	}
}

// takeSnapshotLocked captures the ambient visibility snapshot: xmax one past
// the highest assigned id, xip the other in-flight transactions. Id
// allocation and in-flight insertion happen under the same lock, so a new id
// can never be missing from both xip and the xmax bound.
func (e *Engine) takeSnapshotLocked(current *Txn) asofreads.BaseSnapshot {
	xmax := e.nextXid
	xip := make([]asofreads.TransactionID, 0, len(e.inProgress))

	for xid := range e.inProgress {
		if xid == current.id {
			continue
		}

		xip = append(xip, xid)
	}
	slices.Sort(xip)

	xmin := xmax
	if len(xip) > 0 {
		xmin = xip[0]
	}

	return asofreads.BaseSnapshot{
		Xmin:       xmin,
		Xmax:       xmax,
		Xip:        xip,
		CurrentXid: current.id,
		CommandID:  current.commandID,
		RegdCount:  1,
	}
}

// versionVisibleLocked applies the MVCC visibility rule: the inserting
// transaction must be committed and visible under the snapshot (or be the
// reader itself), and no committed, snapshot-visible deleter may exist.
func (e *Engine) versionVisibleLocked(v *tupleVersion, view snapshotView, reader asofreads.TransactionID) bool {
	if v.xmin == reader {
		return v.xmax != reader
	}

	if e.status[v.xmin] != statusCommitted || !view.XidVisible(v.xmin) {
		return false
	}

	switch {
	case v.xmax == 0:
		return true
	case v.xmax == reader:
		return false
	case e.status[v.xmax] == statusCommitted && view.XidVisible(v.xmax):
		return false
	default:
		return true
	}
}

// scanTableLocked returns, for each key of the table in key order, the newest
// version visible under the view. Versions per key are stored newest first,
// so the first visible one wins.
func (e *Engine) scanTableLocked(table string, view snapshotView, reader asofreads.TransactionID) []*tupleVersion {
	var visible []*tupleVersion
	var lastKey string
	haveKey := false
	resolved := false

	pivot := &tupleVersion{table: table, xmin: ^asofreads.TransactionID(0)}

	e.versions.Ascend(pivot, func(v *tupleVersion) bool {
		if v.table != table {
			return false
		}

		if !haveKey || v.key != lastKey {
			haveKey = true
			lastKey = v.key
			resolved = false
		}

		if resolved {
			return true
		}

		if e.versionVisibleLocked(v, view, reader) {
			visible = append(visible, v)
			resolved = true
		}

		return true
	})

	return visible
}

// Txn is one transaction against the engine. It is bound to a single
// goroutine.
type Txn struct {
	engine    *Engine
	id        asofreads.TransactionID
	isolation asofreads.IsolationLevel
	subDepth  int
	commandID uint32
	fixed     *asofreads.BaseSnapshot
	overlay   *asofreads.EffectiveSnapshot
	done      bool
}

// ID returns the transaction id.
func (t *Txn) ID() asofreads.TransactionID {
	return t.id
}

// Put inserts or updates the tuple identified by (table, key). The previous
// visible version, if any, is stamped with this transaction's id as deleter
// and a new version is appended.
func (t *Txn) Put(table, key string, cols map[string]any) error {
	if t.done {
		return ErrTransactionDone
	}

	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	t.stampCurrentVersionLocked(table, key)

	e.versions.Set(&tupleVersion{
		table: table,
		key:   key,
		cols:  maps.Clone(cols),
		xmin:  t.id,
	})
	t.commandID++

	return nil
}

// Delete marks the tuple's current version as deleted by this transaction.
func (t *Txn) Delete(table, key string) error {
	if t.done {
		return ErrTransactionDone
	}

	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	t.stampCurrentVersionLocked(table, key)
	t.commandID++

	return nil
}

// stampCurrentVersionLocked sets this transaction as the deleter of the
// newest not-yet-deleted version of (table, key), if one exists.
func (t *Txn) stampCurrentVersionLocked(table, key string) {
	e := t.engine
	pivot := &tupleVersion{table: table, key: key, xmin: ^asofreads.TransactionID(0)}

	e.versions.Ascend(pivot, func(v *tupleVersion) bool {
		if v.table != table || v.key != key {
			return false
		}

		if e.status[v.xmin] == statusAborted {
			return true
		}

		if v.xmax == 0 || e.status[v.xmax] == statusAborted {
			v.xmax = t.id
			return false
		}

		return false
	})
}

// Commit makes the transaction's writes durable in the commit log and emits a
// commit event.
func (t *Txn) Commit() error {
	return t.end(statusCommitted)
}

// Abort discards the transaction's writes and emits an abort event.
func (t *Txn) Abort() error {
	return t.end(statusAborted)
}

func (t *Txn) end(final txStatus) error {
	if t.done {
		return ErrTransactionDone
	}

	if t.subDepth > 0 {
		return ErrSubtransactionOpen
	}

	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status[t.id] = final
	delete(e.inProgress, t.id)

	if final == statusCommitted {
		e.emitLocked(asofreads.BuildCommitEvent(t.id, e.nextPositionLocked()))
	} else {
		e.emitLocked(asofreads.BuildAbortEvent(t.id, e.nextPositionLocked()))
	}

	t.done = true
	t.overlay = nil
	t.fixed = nil

	return nil
}

// EnterSubtransaction opens a nested scope.
func (t *Txn) EnterSubtransaction() error {
	if t.done {
		return ErrTransactionDone
	}

	t.subDepth++

	return nil
}

// ExitSubtransaction closes the innermost nested scope.
func (t *Txn) ExitSubtransaction() error {
	if t.done {
		return ErrTransactionDone
	}

	if t.subDepth == 0 {
		return fmt.Errorf("no subtransaction scope open")
	}

	t.subDepth--

	return nil
}

// Session returns the asofreads.Session view of this transaction. The session
// does not own the transaction: closing it leaves the transaction open.
func (t *Txn) Session() *Session {
	return &Session{txn: t}
}
