package asofreads

import (
	"fmt"
	"slices"
)

// TransactionID identifies a write transaction, assigned by the storage engine
// when the transaction begins writing. IDs are totally ordered here; wraparound
// handling is out of scope.
type TransactionID uint64

// HistoricalSnapshot describes exactly which transactions' writes were visible
// immediately after some commit: writes of transactions below Xmin are visible,
// writes at or above Xmax are not, and writes of the in-progress ids in Xip are
// not.
//
// Invariants: Xmin <= Xmax, every Xip member lies in [Xmin, Xmax), Xip is
// sorted ascending and free of duplicates. While its properties are exported,
// it should only be constructed with BuildHistoricalSnapshot or DecodeSnapshot,
// which enforce the invariants.
type HistoricalSnapshot struct {
	Xmin TransactionID
	Xmax TransactionID
	Xip  []TransactionID
}

// BuildHistoricalSnapshot is a factory method for HistoricalSnapshot.
//
// The supplied xip slice is copied, sorted and validated; an empty xip is
// normalized to nil so that value comparison of snapshots is well-defined.
// Returns an error wrapping ErrMalformedSnapshot if the invariants do not hold.
func BuildHistoricalSnapshot(xmin, xmax TransactionID, xip []TransactionID) (HistoricalSnapshot, error) {
	if xmin > xmax {
		return HistoricalSnapshot{}, fmt.Errorf("%w: xmin %d greater than xmax %d", ErrMalformedSnapshot, xmin, xmax)
	}

	if len(xip) == 0 {
		return HistoricalSnapshot{Xmin: xmin, Xmax: xmax}, nil
	}

	sorted := slices.Clone(xip)
	slices.Sort(sorted)

	for i, xid := range sorted {
		if xid < xmin || xid >= xmax {
			return HistoricalSnapshot{}, fmt.Errorf("%w: xip entry %d outside [%d, %d)", ErrMalformedSnapshot, xid, xmin, xmax)
		}

		if i > 0 && sorted[i-1] == xid {
			return HistoricalSnapshot{}, fmt.Errorf("%w: duplicate xip entry %d", ErrMalformedSnapshot, xid)
		}
	}

	return HistoricalSnapshot{Xmin: xmin, Xmax: xmax, Xip: sorted}, nil
}

// XidVisible reports whether the writes of the given transaction id are
// visible under this snapshot: the transaction must have completed before the
// snapshot was taken and must not have been in flight at that moment.
func (s HistoricalSnapshot) XidVisible(xid TransactionID) bool {
	return xidVisible(xid, s.Xmin, s.Xmax, s.Xip)
}

// xidVisible is the shared visibility rule over an (xmin, xmax, sorted xip)
// triple: ids below xmin completed before the snapshot, ids at or above xmax
// had not completed yet, and ids in xip were still in flight.
func xidVisible(xid, xmin, xmax TransactionID, xip []TransactionID) bool {
	if xid < xmin {
		return true
	}

	if xid >= xmax {
		return false
	}

	_, inFlight := slices.BinarySearch(xip, xid)

	return !inFlight
}

// TaggedSnapshot is a HistoricalSnapshot emitted by the Tailer, tagged with the
// commit that produced it and the log position of the commit event.
type TaggedSnapshot struct {
	Snapshot     HistoricalSnapshot
	CommittedXid TransactionID
	Position     LogPosition
}
