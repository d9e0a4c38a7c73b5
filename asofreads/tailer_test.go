package asofreads_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
	"github.com/asofreads/mvcc-asof-reads-go/testutil/helper"
)

func Test_Tailer_CommitEmitsSnapshotForEachCommit(t *testing.T) {
	// arrange: two transactions in flight
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)
	_, err = tailer.Feed(asofreads.BuildBeginEvent(101, 2))
	assert.NoError(t, err)

	// act: the first commit sees the other transaction still in flight
	first, err := tailer.Feed(asofreads.BuildCommitEvent(100, 3))

	// assert
	assert.NoError(t, err)
	assert.NotNil(t, first)
	assert.Equal(t, "101:102:101", first.Snapshot.Encode())
	assert.Equal(t, asofreads.TransactionID(100), first.CommittedXid)
	assert.Equal(t, asofreads.LogPosition(3), first.Position)

	// act: the second commit leaves nothing in flight
	second, err := tailer.Feed(asofreads.BuildCommitEvent(101, 4))

	// assert
	assert.NoError(t, err)
	assert.NotNil(t, second)
	assert.Equal(t, "102:102:", second.Snapshot.Encode())
	assert.Empty(t, tailer.InFlight())
}

func Test_Tailer_SnapshotHidesInFlightAndShowsCommitted(t *testing.T) {
	// arrange
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)
	_, err = tailer.Feed(asofreads.BuildBeginEvent(101, 2))
	assert.NoError(t, err)

	// act
	tagged, err := tailer.Feed(asofreads.BuildCommitEvent(100, 3))
	assert.NoError(t, err)

	// assert: the committed xid is visible, the in-flight one is not
	assert.True(t, tagged.Snapshot.XidVisible(100))
	assert.False(t, tagged.Snapshot.XidVisible(101))
	assert.False(t, tagged.Snapshot.XidVisible(102))
}

func Test_Tailer_BeginAndAbortEmitNothing(t *testing.T) {
	// arrange
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	// act + assert
	tagged, err := tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)
	assert.Nil(t, tagged)

	tagged, err = tailer.Feed(asofreads.BuildAbortEvent(100, 2))
	assert.NoError(t, err)
	assert.Nil(t, tagged)

	assert.Empty(t, tailer.InFlight())
}

func Test_Tailer_AbortRemovesTransactionFromFlightTracking(t *testing.T) {
	// arrange: one abort, one commit
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)
	_, err = tailer.Feed(asofreads.BuildBeginEvent(101, 2))
	assert.NoError(t, err)
	_, err = tailer.Feed(asofreads.BuildAbortEvent(100, 3))
	assert.NoError(t, err)

	// act
	tagged, err := tailer.Feed(asofreads.BuildCommitEvent(101, 4))
	assert.NoError(t, err)

	// assert: the aborted xid no longer appears in xip; the engine hides its
	// writes through commit status, not through the snapshot
	assert.Equal(t, "102:102:", tagged.Snapshot.Encode())
	assert.True(t, tagged.Snapshot.XidVisible(101))
}

func Test_Tailer_OutOfOrderEventFails(t *testing.T) {
	tests := []struct {
		name     string
		position asofreads.LogPosition
	}{
		{name: "position_before_last", position: 1},
		{name: "position_equal_to_last", position: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			tailer, err := asofreads.NewTailer()
			assert.NoError(t, err)

			_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 2))
			assert.NoError(t, err)

			// act
			_, err = tailer.Feed(asofreads.BuildBeginEvent(101, tc.position))

			// assert
			assert.ErrorIs(t, err, asofreads.ErrOutOfOrderEvent)
			assert.Equal(t, asofreads.LogPosition(2), tailer.Position())
		})
	}
}

func Test_Tailer_DuplicateBeginFails(t *testing.T) {
	// arrange
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)

	// act
	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 2))

	// assert
	assert.ErrorIs(t, err, asofreads.ErrDuplicateBegin)
	assert.Equal(t, []asofreads.TransactionID{100}, tailer.InFlight())
}

func Test_Tailer_ToleratesUnknownCommitWhenAttachingMidStream(t *testing.T) {
	// arrange: the tailer never saw this transaction begin
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	// act
	tagged, err := tailer.Feed(asofreads.BuildCommitEvent(200, 1))

	// assert: the commit still emits a snapshot
	assert.NoError(t, err)
	assert.NotNil(t, tagged)
	assert.Equal(t, "201:201:", tagged.Snapshot.Encode())
}

func Test_Tailer_DiscardsUnknownAbortWithWarning(t *testing.T) {
	// arrange
	loggerSpy := helper.NewLoggerSpy()
	tailer, err := asofreads.NewTailer(asofreads.WithTailerLogger(loggerSpy))
	assert.NoError(t, err)

	// act
	tagged, err := tailer.Feed(asofreads.BuildAbortEvent(200, 1))

	// assert
	assert.NoError(t, err)
	assert.Nil(t, tagged)
	assert.True(t, loggerSpy.HasMessage("event for unknown transaction discarded"))
}

func Test_Tailer_InFlightIsSortedAscending(t *testing.T) {
	// arrange
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	for i, xid := range []asofreads.TransactionID{105, 101, 103} {
		_, err = tailer.Feed(asofreads.BuildBeginEvent(xid, asofreads.LogPosition(i+1)))
		assert.NoError(t, err)
	}

	// act + assert
	assert.Equal(t, []asofreads.TransactionID{101, 103, 105}, tailer.InFlight())
}

func Test_Tailer_XmaxCoversHighestInFlightId(t *testing.T) {
	// arrange: a lower id commits while a higher one is still in flight
	tailer, err := asofreads.NewTailer()
	assert.NoError(t, err)

	_, err = tailer.Feed(asofreads.BuildBeginEvent(100, 1))
	assert.NoError(t, err)
	_, err = tailer.Feed(asofreads.BuildBeginEvent(300, 2))
	assert.NoError(t, err)

	// act
	tagged, err := tailer.Feed(asofreads.BuildCommitEvent(100, 3))
	assert.NoError(t, err)

	// assert: xmax bounds the highest known id, the in-flight id sits in xip
	assert.Equal(t, "300:301:300", tagged.Snapshot.Encode())
	assert.True(t, tagged.Snapshot.XidVisible(100))
	assert.False(t, tagged.Snapshot.XidVisible(300))
}
