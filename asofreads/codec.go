package asofreads

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	segmentSeparator = ":"
	xipSeparator     = ","
	snapshotSegments = 3
)

// Encode renders the snapshot in its canonical text form
// "xmin:xmax:xip1,xip2,..." with ASCII decimal unsigned integers and exactly
// two colon separators. An empty xip renders as nothing after the second colon.
//
// The round-trip law holds for every valid snapshot s:
// DecodeSnapshot(s.Encode()) == s.
func (s HistoricalSnapshot) Encode() string {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(uint64(s.Xmin), 10))
	b.WriteString(segmentSeparator)
	b.WriteString(strconv.FormatUint(uint64(s.Xmax), 10))
	b.WriteString(segmentSeparator)

	for i, xid := range s.Xip {
		if i > 0 {
			b.WriteString(xipSeparator)
		}
		b.WriteString(strconv.FormatUint(uint64(xid), 10))
	}

	return b.String()
}

// DecodeSnapshot parses the canonical text form back into a HistoricalSnapshot.
//
// It fails with an error wrapping ErrMalformedSnapshot when the xmin or xmax
// token is missing or non-numeric, when xmin > xmax, when any xip entry lies
// outside [xmin, xmax) or occurs twice, or when the text has more or fewer than
// three colon-delimited segments. The decoded xip is sorted ascending.
func DecodeSnapshot(text string) (HistoricalSnapshot, error) {
	var empty HistoricalSnapshot

	segments := strings.Split(text, segmentSeparator)

	switch {
	case len(segments) == 1:
		return empty, fmt.Errorf("%w: missing xmax", ErrMalformedSnapshot)
	case len(segments) == 2:
		return empty, fmt.Errorf("%w: missing xip segment", ErrMalformedSnapshot)
	case len(segments) > snapshotSegments:
		return empty, fmt.Errorf("%w: too many segments", ErrMalformedSnapshot)
	}

	xmin, err := parseXid(segments[0], "xmin")
	if err != nil {
		return empty, err
	}

	xmax, err := parseXid(segments[1], "xmax")
	if err != nil {
		return empty, err
	}

	var xip []TransactionID

	if segments[2] != "" {
		tokens := strings.Split(segments[2], xipSeparator)
		xip = make([]TransactionID, 0, len(tokens))

		for _, token := range tokens {
			xid, parseErr := parseXid(token, "xip entry")
			if parseErr != nil {
				return empty, parseErr
			}

			xip = append(xip, xid)
		}
	}

	return BuildHistoricalSnapshot(xmin, xmax, xip)
}

// parseXid parses one ASCII decimal unsigned token; sign characters and empty
// tokens are rejected.
func parseXid(token string, field string) (TransactionID, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedSnapshot, field)
	}

	value, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric %s %q", ErrMalformedSnapshot, field, token)
	}

	return TransactionID(value), nil
}
