// Package asofreads provides point-in-time ("as of") reads for MVCC storage
// engines based on historical visibility snapshots.
//
// A historical snapshot is the compact {xmin, xmax, xip} triple that describes
// exactly which transactions' writes were visible immediately after a given
// commit. The package derives such snapshots from an ordered stream of
// transaction begin/commit/abort events, encodes them canonically as text, and
// can later substitute a decoded snapshot for the ambient one during a single
// bounded read-only operation.
//
// Key components:
//   - Tailer: consumes an ordered commit-event stream and emits a
//     HistoricalSnapshot after every commit
//   - HistoricalSnapshot + Encode/DecodeSnapshot: the canonical text codec
//   - TxnGuard: the per-transaction state machine gating when a synthetic
//     snapshot may be installed
//   - BuildEffectiveSnapshot: clone-with-override construction of the
//     effective visibility snapshot
//   - Gateway: executes one read-only query under an installed overlay,
//     end to end, with deterministic teardown on every exit path
//
// The underlying multi-version storage engine is an external collaborator,
// integrated through the Engine and Session interfaces. The repository ships
// two implementations: memoryengine (embedded, used by the test suite) and
// postgresengine (delegating the read to a server-side companion function).
//
// Snapshots derived from an externally observed commit stream are an
// approximation: the tailer sees commit order asynchronously instead of taking
// an atomic snapshot inside the engine at the instant of commit. The
// derivation is deliberately conservative (stray in-flight ids may be
// retained), and byte-for-byte agreement with an authoritative in-engine
// snapshot is not guaranteed.
//
// Common usage pattern:
//
//	tailer, err := asofreads.NewTailer()
//	tagged, err := tailer.Feed(event) // returns a snapshot on commits
//	if tagged != nil {
//		text := tagged.Snapshot.Encode() // store or transmit
//	}
//
//	gateway, err := asofreads.NewGateway(engine)
//	rows, err := gateway.Execute(ctx, text, "SELECT * FROM readings", nil)
package asofreads
