package osmstore

import (
	"errors"
	"sync/atomic"
)

// Interrupted is set by the surrounding process (e.g. on SIGINT) and
// polled between batches by ingestion and export loops. The store
// itself never reads or writes it; it exists here only so every
// consumer shares a single flag instead of inventing its own.
var Interrupted atomic.Bool

// ErrOutOfSpace signals that a mutating operation ran out of backing
// storage. It never escapes the package: the arena's resize-retry loop
// (withRetry) catches it, grows the arena, and replays the operation.
var ErrOutOfSpace = errors.New("osmstore: out of space")

// ErrOutOfRange is returned by CompactNodeStore when Set is given a
// NodeID at or beyond the ceiling fixed by Reserve, or when Get is given
// a NodeID beyond the current mapping.
var ErrOutOfRange = errors.New("osmstore: node id out of range")

// ErrNotFound is returned by SparseNodeStore, WayStore, and
// RelationStore when the requested id has no entry.
var ErrNotFound = errors.New("osmstore: not found")

// ErrGrowthFailure is returned when the arena cannot grow further
// (backing file cannot be extended, or mmap of the new size fails). It
// is fatal: callers should abort rather than retry.
var ErrGrowthFailure = errors.New("osmstore: arena growth failed")
