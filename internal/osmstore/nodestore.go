package osmstore

import (
	"encoding/binary"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// NodeID identifies an OSM node.
type NodeID uint64

// LatpLon is a node's position: latp is the Mercator-projected
// latitude, lon the longitude, both stored as signed integers in units
// of 1e-7 degrees.
type LatpLon struct {
	Latp int32
	Lon  int32
}

// NodeStore resolves node coordinates during way and relation
// assembly.
type NodeStore interface {
	// Reserve pre-sizes the store for up to n node ids. Sparse stores
	// treat this as a no-op hint (a Go map grows on demand regardless);
	// the compact store uses it to fix a hard id ceiling, per Set.
	Reserve(n NodeID) error
	Set(id NodeID, ll LatpLon) error
	Get(id NodeID) (LatpLon, error)
	Len() int
}

const compactRecordSize = 8 // int32 latp + int32 lon

// CompactNodeStore is a dense, mmap-backed array indexed directly by
// NodeID. It suits extracts where node ids are densely packed (a
// single planet or country extract): lookups are a single offset
// computation into the arena's mapping, no hashing.
type CompactNodeStore struct {
	arena *Arena

	mu       sync.RWMutex
	data     mmap.MMap
	reserved int64 // node-id ceiling from Reserve; 0 means unset (no ceiling)
}

// NewCompactNodeStore creates a node store backed by arena. The arena
// is dedicated to this store: CompactNodeStore claims the whole
// mapping as its record array and grows it in lockstep with node ids
// it hasn't seen capacity for yet.
func NewCompactNodeStore(arena *Arena) (*CompactNodeStore, error) {
	s := &CompactNodeStore{arena: arena}
	if err := arena.register(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CompactNodeStore) rebind(data mmap.MMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// EnsureCapacity grows the backing arena, if necessary, so that ids up
// to and including max can be stored without a mid-insert retry. Bulk
// loaders call this once with the highest node id expected in the
// source file.
func (s *CompactNodeStore) EnsureCapacity(max NodeID) error {
	needed := (int64(max) + 1) * compactRecordSize
	return s.arena.withRetry(func() error {
		s.mu.RLock()
		have := int64(len(s.data))
		s.mu.RUnlock()
		if have >= needed {
			return nil
		}
		return ErrOutOfSpace
	})
}

// Reserve fixes the store's logical node-id ceiling at n: Set rejects
// any id >= n with ErrOutOfRange instead of silently growing the arena
// to fit it. It also calls EnsureCapacity(n-1) so the physical mapping
// already covers every reserved id; the arena can still grow further
// on its own (via Set's withRetry) if the mapping falls behind the
// reservation for some other reason, but ids beyond the ceiling are
// never accepted regardless of how much space is available.
func (s *CompactNodeStore) Reserve(n NodeID) error {
	s.mu.Lock()
	s.reserved = int64(n)
	s.mu.Unlock()

	if n == 0 {
		return nil
	}
	return s.EnsureCapacity(n - 1)
}

// Set stores the coordinate for id. If Reserve has fixed a ceiling and
// id falls at or beyond it, Set returns ErrOutOfRange and leaves the
// store untouched; otherwise it grows the arena as needed.
func (s *CompactNodeStore) Set(id NodeID, ll LatpLon) error {
	s.mu.RLock()
	reserved := s.reserved
	s.mu.RUnlock()
	if reserved > 0 && int64(id) >= reserved {
		return ErrOutOfRange
	}

	offset := int64(id) * compactRecordSize
	return s.arena.withRetry(func() error {
		s.mu.RLock()
		data := s.data
		s.mu.RUnlock()
		if offset+compactRecordSize > int64(len(data)) {
			return ErrOutOfSpace
		}
		binary.LittleEndian.PutUint32(data[offset:], uint32(ll.Latp))
		binary.LittleEndian.PutUint32(data[offset+4:], uint32(ll.Lon))
		return nil
	})
}

// Get returns the coordinate for id. Ids within the current capacity
// that were never Set read back as the zero LatpLon, since the
// backing file is zero-filled on truncation. Ids beyond the current
// capacity report ErrOutOfRange.
func (s *CompactNodeStore) Get(id NodeID) (LatpLon, error) {
	offset := int64(id) * compactRecordSize

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset+compactRecordSize > int64(len(s.data)) {
		return LatpLon{}, ErrOutOfRange
	}
	latp := int32(binary.LittleEndian.Uint32(s.data[offset:]))
	lon := int32(binary.LittleEndian.Uint32(s.data[offset+4:]))
	return LatpLon{Latp: latp, Lon: lon}, nil
}

// Len reports the store's current capacity, not the number of ids
// actually set.
func (s *CompactNodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data) / compactRecordSize
}

// SparseNodeStore is a hash-map node store for extracts where node ids
// are not densely packed (e.g. a bounding-box filtered subset of a
// larger planet file), trading the compact store's O(1) array index
// for an entry per node actually seen.
type SparseNodeStore struct {
	mu    sync.RWMutex
	nodes map[NodeID]LatpLon
}

// NewSparseNodeStore creates an empty sparse node store.
func NewSparseNodeStore() *SparseNodeStore {
	return &SparseNodeStore{nodes: make(map[NodeID]LatpLon)}
}

// Reserve is a no-op: a Go map needs no pre-sizing and SparseNodeStore
// enforces no id ceiling.
func (s *SparseNodeStore) Reserve(n NodeID) error {
	return nil
}

// Set stores the coordinate for id. SparseNodeStore never runs out of
// arena space: it grows like any other Go map.
func (s *SparseNodeStore) Set(id NodeID, ll LatpLon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = ll
	return nil
}

// Get returns the coordinate for id, or ErrNotFound if id was never
// Set.
func (s *SparseNodeStore) Get(id NodeID) (LatpLon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ll, ok := s.nodes[id]
	if !ok {
		return LatpLon{}, ErrNotFound
	}
	return ll, nil
}

// Len returns the number of nodes actually stored.
func (s *SparseNodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
