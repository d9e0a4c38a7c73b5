package asofreads

import (
	"slices"
)

// BaseSnapshot is the ambient visibility snapshot fetched from the storage
// engine, including the non-visibility metadata that must survive a
// clone-with-override. Field layout follows the usual MVCC snapshot shape:
// visibility triple, subtransaction ids, and reference-count-style bookkeeping
// owned by the engine's snapshot manager.
type BaseSnapshot struct {
	Xmin TransactionID
	Xmax TransactionID
	Xip  []TransactionID // sorted ascending

	// SubXip lists in-flight subtransaction ids; SubOverflowed marks a
	// truncated list.
	SubXip        []TransactionID
	SubOverflowed bool

	// CurrentXid and CommandID are non-visibility metadata carried along so
	// the engine can attribute reads to the surrounding transaction.
	CurrentXid TransactionID
	CommandID  uint32

	// ActiveCount and RegdCount are engine-side registration counters. A
	// derived snapshot never inherits them.
	ActiveCount int
	RegdCount   int
}

// XidVisible reports whether the writes of the given transaction id are
// visible under this snapshot.
func (b BaseSnapshot) XidVisible(xid TransactionID) bool {
	return xidVisible(xid, b.Xmin, b.Xmax, b.Xip)
}

// EffectiveSnapshot is the visibility snapshot substituted for the ambient one
// during a bounded scope. It is a fresh, independently owned value: its xip
// slice is owned, its registration counters are zero, and its subtransaction
// list is empty (subtransaction ids are not tracked, a documented
// approximation). It is immutable once installed and must never be referenced
// after its owning scope ends.
type EffectiveSnapshot struct {
	Xmin TransactionID
	Xmax TransactionID
	Xip  []TransactionID // owned copy, sorted ascending

	CurrentXid TransactionID
	CommandID  uint32

	// Copied marks the snapshot as a private copy so engines never treat it as
	// an alias of a managed snapshot.
	Copied bool
}

// BuildEffectiveSnapshot clones the base snapshot and overrides its visibility
// fields with the historical snapshot's values.
//
// Non-visibility metadata (current xid, command id) is copied from the base;
// the xip list is a deep copy of the historical one so the result shares no
// storage with either input; registration bookkeeping inherited from the base
// is zeroed because the result is an independently owned value, not an alias;
// the subtransaction id list is forced empty.
func BuildEffectiveSnapshot(base BaseSnapshot, hist HistoricalSnapshot) EffectiveSnapshot {
	return EffectiveSnapshot{
		Xmin:       hist.Xmin,
		Xmax:       hist.Xmax,
		Xip:        slices.Clone(hist.Xip),
		CurrentXid: base.CurrentXid,
		CommandID:  base.CommandID,
		Copied:     true,
	}
}

// XidVisible reports whether the writes of the given transaction id are
// visible under this snapshot.
func (e EffectiveSnapshot) XidVisible(xid TransactionID) bool {
	return xidVisible(xid, e.Xmin, e.Xmax, e.Xip)
}
