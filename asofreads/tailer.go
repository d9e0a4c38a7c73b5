package asofreads

import (
	"fmt"
	"slices"
)

const (
	logMsgSnapshotEmitted = "historical snapshot emitted"
	logMsgEventDiscarded  = "event for unknown transaction discarded"
	logAttrXid            = "xid"
	logAttrPosition       = "position"
	logAttrSnapshot       = "snapshot"
	logAttrInFlight       = "in_flight"
	logAttrEventType      = "event_type"
)

// Tailer consumes an ordered stream of transaction begin/commit/abort events
// and emits a HistoricalSnapshot after every commit, describing what was
// visible immediately after that commit.
//
// A Tailer is a single sequential consumer bound to one ordered event stream.
// It is not safe for concurrent use; feeding events from multiple goroutines
// is a protocol violation by definition, since it destroys arrival order.
//
// The derivation is an approximation: commit order is observed asynchronously
// rather than atomically inside the engine, and the bias is conservative. A
// transaction whose begin was observed but whose outcome was missed stays in
// the in-flight set, which hides its writes rather than exposing them.
type Tailer struct {
	inFlight map[TransactionID]struct{}
	position LogPosition
	primed   bool
	logger   Logger
}

// TailerOption defines a functional option for configuring a Tailer.
type TailerOption func(*Tailer) error

// WithTailerLogger sets the logger for the Tailer. Snapshot emissions are
// logged at debug level, discarded events for unknown transactions at warn.
func WithTailerLogger(logger Logger) TailerOption {
	return func(t *Tailer) error {
		t.logger = logger
		return nil
	}
}

// NewTailer creates a Tailer with an empty in-flight set.
func NewTailer(options ...TailerOption) (*Tailer, error) {
	t := &Tailer{
		inFlight: make(map[TransactionID]struct{}),
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Feed processes one event in strict log order.
//
// Commit events return the emitted TaggedSnapshot; begin and abort events
// return nil. An event at or before the last processed log position fails with
// ErrOutOfOrderEvent and a begin for an id already in flight fails with
// ErrDuplicateBegin; both corrupt the bookkeeping if ignored, so neither is
// retryable. A commit or abort for an id that was never seen is tolerated,
// because a tailer may attach to a stream mid-way: the abort is discarded and
// the commit still emits a snapshot.
func (t *Tailer) Feed(event Event) (*TaggedSnapshot, error) {
	if t.primed && event.Position <= t.position {
		return nil, fmt.Errorf("%w: position %d not after %d", ErrOutOfOrderEvent, event.Position, t.position)
	}

	t.position = event.Position
	t.primed = true

	switch event.Type {
	case EventBegin:
		return nil, t.handleBegin(event)

	case EventCommit:
		return t.handleCommit(event), nil

	case EventAbort:
		t.handleAbort(event)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown commit stream event type %d", event.Type)
	}
}

// InFlight returns the ids currently considered in flight, sorted ascending.
func (t *Tailer) InFlight() []TransactionID {
	ids := make([]TransactionID, 0, len(t.inFlight))
	for xid := range t.inFlight {
		ids = append(ids, xid)
	}

	slices.Sort(ids)

	return ids
}

// Position returns the log position of the last processed event.
func (t *Tailer) Position() LogPosition {
	return t.position
}

func (t *Tailer) handleBegin(event Event) error {
	if _, exists := t.inFlight[event.Xid]; exists {
		return fmt.Errorf("%w: xid %d at position %d", ErrDuplicateBegin, event.Xid, event.Position)
	}

	t.inFlight[event.Xid] = struct{}{}

	return nil
}

// handleCommit derives the snapshot describing visibility immediately after
// this commit: the committed xid itself is visible, everything still in flight
// is not.
func (t *Tailer) handleCommit(event Event) *TaggedSnapshot {
	xmax := event.Xid
	var xmin TransactionID
	remaining := make([]TransactionID, 0, len(t.inFlight))

	for xid := range t.inFlight {
		if xid == event.Xid {
			continue
		}

		if len(remaining) == 0 || xid < xmin {
			xmin = xid
		}
		if xid > xmax {
			xmax = xid
		}

		remaining = append(remaining, xid)
	}

	// xmax is exclusive: one past the highest id known at this commit.
	xmax++

	if len(remaining) == 0 {
		xmin = xmax
	}

	xip := remaining[:0]
	for _, xid := range remaining {
		if xid >= xmin && xid < xmax {
			xip = append(xip, xid)
		}
	}
	slices.Sort(xip)

	delete(t.inFlight, event.Xid)

	snapshot, buildErr := BuildHistoricalSnapshot(xmin, xmax, xip)
	if buildErr != nil {
		// Unreachable by construction: xmin/xmax/xip are derived to satisfy
		// the invariants. Surfaced loudly rather than masked.
		panic(fmt.Sprintf("commit stream derivation produced invalid snapshot: %v", buildErr))
	}

	if t.logger != nil {
		t.logger.Debug(logMsgSnapshotEmitted,
			logAttrXid, uint64(event.Xid),
			logAttrPosition, uint64(event.Position),
			logAttrSnapshot, snapshot.Encode(),
			logAttrInFlight, len(t.inFlight))
	}

	return &TaggedSnapshot{
		Snapshot:     snapshot,
		CommittedXid: event.Xid,
		Position:     event.Position,
	}
}

func (t *Tailer) handleAbort(event Event) {
	if _, exists := t.inFlight[event.Xid]; !exists {
		if t.logger != nil {
			t.logger.Warn(logMsgEventDiscarded,
				logAttrEventType, event.Type.String(),
				logAttrXid, uint64(event.Xid),
				logAttrPosition, uint64(event.Position))
		}

		return
	}

	delete(t.inFlight, event.Xid)
}
