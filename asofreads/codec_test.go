package asofreads_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

func Test_DecodeSnapshot_ValidInputs(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		expectedXmin asofreads.TransactionID
		expectedXmax asofreads.TransactionID
		expectedXip  []asofreads.TransactionID
	}{
		{
			name:         "empty_xip",
			text:         "100:100:",
			expectedXmin: 100,
			expectedXmax: 100,
			expectedXip:  nil,
		},
		{
			name:         "single_xip_entry",
			text:         "101:102:101",
			expectedXmin: 101,
			expectedXmax: 102,
			expectedXip:  []asofreads.TransactionID{101},
		},
		{
			name:         "multiple_xip_entries",
			text:         "5:10:5,7,9",
			expectedXmin: 5,
			expectedXmax: 10,
			expectedXip:  []asofreads.TransactionID{5, 7, 9},
		},
		{
			name:         "unsorted_xip_is_sorted",
			text:         "5:10:9,5,7",
			expectedXmin: 5,
			expectedXmax: 10,
			expectedXip:  []asofreads.TransactionID{5, 7, 9},
		},
		{
			name:         "zero_snapshot",
			text:         "0:0:",
			expectedXmin: 0,
			expectedXmax: 0,
			expectedXip:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			snapshot, err := asofreads.DecodeSnapshot(tc.text)

			// assert
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedXmin, snapshot.Xmin)
			assert.Equal(t, tc.expectedXmax, snapshot.Xmax)
			assert.Equal(t, tc.expectedXip, snapshot.Xip)
		})
	}
}

func Test_DecodeSnapshot_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "missing_separators", text: "123"},
		{name: "missing_xip_segment", text: "5:9"},
		{name: "xmin_greater_than_xmax", text: "5:3:"},
		{name: "xip_entry_at_xmax", text: "5:10:10"},
		{name: "xip_entry_above_xmax", text: "5:10:12"},
		{name: "xip_entry_below_xmin", text: "5:10:4"},
		{name: "duplicate_xip_entry", text: "5:10:6,6"},
		{name: "too_many_segments", text: "5:10:6:7"},
		{name: "empty_text", text: ""},
		{name: "empty_xmin", text: ":10:"},
		{name: "empty_xmax", text: "5::"},
		{name: "non_numeric_xmin", text: "abc:10:"},
		{name: "non_numeric_xmax", text: "5:xyz:"},
		{name: "non_numeric_xip_entry", text: "5:10:abc"},
		{name: "signed_xmin", text: "-5:10:"},
		{name: "signed_xmax", text: "5:+10:"},
		{name: "empty_xip_entry", text: "5:10:6,,8"},
		{name: "whitespace_in_xmin", text: " 5:10:"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := asofreads.DecodeSnapshot(tc.text)

			// assert
			assert.ErrorIs(t, err, asofreads.ErrMalformedSnapshot)
		})
	}
}

func Test_Encode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty_xip", text: "102:102:"},
		{name: "single_xip_entry", text: "101:102:101"},
		{name: "multiple_xip_entries", text: "5:10:5,7,9"},
		{name: "large_ids", text: "18446744073709551614:18446744073709551615:18446744073709551614"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			snapshot, err := asofreads.DecodeSnapshot(tc.text)
			assert.NoError(t, err)

			// act
			encoded := snapshot.Encode()

			// assert
			assert.Equal(t, tc.text, encoded)

			decoded, decodeErr := asofreads.DecodeSnapshot(encoded)
			assert.NoError(t, decodeErr)
			assert.Equal(t, snapshot, decoded)
		})
	}
}

func Test_Encode_CanonicalizesUnsortedXip(t *testing.T) {
	// arrange
	snapshot, err := asofreads.BuildHistoricalSnapshot(5, 10, []asofreads.TransactionID{9, 5, 7})
	assert.NoError(t, err)

	// act
	encoded := snapshot.Encode()

	// assert
	assert.Equal(t, "5:10:5,7,9", encoded)
}
