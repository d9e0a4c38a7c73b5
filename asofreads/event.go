package asofreads

// LogPosition locates a commit-stream event in its source log. Positions are
// strictly increasing within one stream; one position stream exists per Tailer.
type LogPosition uint64

// EventType enumerates the transaction lifecycle events observed on the
// commit stream.
type EventType int

const (
	// EventBegin marks a transaction starting to write.
	EventBegin EventType = iota
	// EventCommit marks a transaction committing.
	EventCommit
	// EventAbort marks a transaction aborting.
	EventAbort
)

// String returns the event type name for logging.
func (t EventType) String() string {
	switch t {
	case EventBegin:
		return "begin"
	case EventCommit:
		return "commit"
	case EventAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Event is a DTO for one observed transaction lifecycle event. The
// subscription mechanism that delivers events is an external collaborator;
// this package only requires that events arrive in strict log order.
//
// It should be constructed with the supplied factory methods:
//   - BuildBeginEvent
//   - BuildCommitEvent
//   - BuildAbortEvent
type Event struct {
	Type     EventType
	Xid      TransactionID
	Position LogPosition
}

// BuildBeginEvent is a factory method for a begin Event.
func BuildBeginEvent(xid TransactionID, position LogPosition) Event {
	return Event{Type: EventBegin, Xid: xid, Position: position}
}

// BuildCommitEvent is a factory method for a commit Event.
func BuildCommitEvent(xid TransactionID, position LogPosition) Event {
	return Event{Type: EventCommit, Xid: xid, Position: position}
}

// BuildAbortEvent is a factory method for an abort Event.
func BuildAbortEvent(xid TransactionID, position LogPosition) Event {
	return Event{Type: EventAbort, Xid: xid, Position: position}
}
