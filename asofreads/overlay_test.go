package asofreads_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

func Test_BuildEffectiveSnapshot_OverridesVisibilityAndKeepsMetadata(t *testing.T) {
	// arrange
	base := asofreads.BaseSnapshot{
		Xmin:          200,
		Xmax:          210,
		Xip:           []asofreads.TransactionID{205},
		SubXip:        []asofreads.TransactionID{206, 207},
		SubOverflowed: true,
		CurrentXid:    208,
		CommandID:     4,
		ActiveCount:   2,
		RegdCount:     1,
	}
	hist, err := asofreads.BuildHistoricalSnapshot(100, 110, []asofreads.TransactionID{103, 107})
	assert.NoError(t, err)

	// act
	effective := asofreads.BuildEffectiveSnapshot(base, hist)

	// assert: visibility comes from the historical snapshot
	assert.Equal(t, asofreads.TransactionID(100), effective.Xmin)
	assert.Equal(t, asofreads.TransactionID(110), effective.Xmax)
	assert.Equal(t, []asofreads.TransactionID{103, 107}, effective.Xip)

	// assert: non-visibility metadata comes from the base
	assert.Equal(t, asofreads.TransactionID(208), effective.CurrentXid)
	assert.Equal(t, uint32(4), effective.CommandID)

	// assert: the result is marked as a private copy
	assert.True(t, effective.Copied)
}

func Test_BuildEffectiveSnapshot_OwnsItsXipSlice(t *testing.T) {
	// arrange
	hist, err := asofreads.BuildHistoricalSnapshot(100, 110, []asofreads.TransactionID{103})
	assert.NoError(t, err)

	// act
	effective := asofreads.BuildEffectiveSnapshot(asofreads.BaseSnapshot{}, hist)
	hist.Xip[0] = 104

	// assert: mutating the historical xip does not leak into the effective one
	assert.Equal(t, []asofreads.TransactionID{103}, effective.Xip)
}

func Test_EffectiveSnapshot_XidVisible_FollowsHistoricalRule(t *testing.T) {
	// arrange
	hist, err := asofreads.BuildHistoricalSnapshot(100, 110, []asofreads.TransactionID{105})
	assert.NoError(t, err)
	effective := asofreads.BuildEffectiveSnapshot(asofreads.BaseSnapshot{}, hist)

	tests := []struct {
		name     string
		xid      asofreads.TransactionID
		expected bool
	}{
		{name: "below_xmin", xid: 99, expected: true},
		{name: "committed_in_range", xid: 104, expected: true},
		{name: "in_xip", xid: 105, expected: false},
		{name: "at_xmax", xid: 110, expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act + assert
			assert.Equal(t, tc.expected, effective.XidVisible(tc.xid))
			assert.Equal(t, tc.expected, hist.XidVisible(tc.xid))
		})
	}
}

func Test_BaseSnapshot_XidVisible(t *testing.T) {
	// arrange
	base := asofreads.BaseSnapshot{
		Xmin: 10,
		Xmax: 20,
		Xip:  []asofreads.TransactionID{12, 15},
	}

	// act + assert
	assert.True(t, base.XidVisible(9))
	assert.True(t, base.XidVisible(13))
	assert.False(t, base.XidVisible(12))
	assert.False(t, base.XidVisible(20))
}
