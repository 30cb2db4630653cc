package osmstore

import "sync"

// WayID identifies an OSM way. Negative values are reserved for
// synthesized pseudo-ways: ids manufactured by the ingesting caller
// (internal/pbf negates the relation's OSM id) to stand
// in for a multipolygon relation wherever a single way id is expected
// (RelationStore's own keys, and any GeneratedGeometry recording which
// way/relation produced it).
type WayID int64

// WayStore holds the ordered node sequence for every way. Unlike
// NodeStore, ways vary in length, so they live in an ordinary
// heap-backed map rather than the mmap arena: Go's garbage collector
// already guarantees a stable address for as long as the slice is
// reachable, which is all the stability the assembler needs.
type WayStore struct {
	mu   sync.RWMutex
	ways map[WayID][]NodeID
}

// NewWayStore creates an empty way store.
func NewWayStore() *WayStore {
	return &WayStore{ways: make(map[WayID][]NodeID)}
}

// Set records the node sequence for id, replacing any previous entry.
func (s *WayStore) Set(id WayID, nodes []NodeID) error {
	stored := make([]NodeID, len(nodes))
	copy(stored, nodes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ways[id] = stored
	return nil
}

// Get returns the node sequence for id, or ErrNotFound.
func (s *WayStore) Get(id WayID) ([]NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, ok := s.ways[id]
	if !ok {
		return nil, ErrNotFound
	}
	return nodes, nil
}

// Len returns the number of ways stored.
func (s *WayStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ways)
}

// IsClosed reports whether the way's first and last nodes coincide. A
// way of fewer than four nodes is never considered closed: a valid
// closed ring needs at least three distinct points plus the repeated
// first/last node.
func (s *WayStore) IsClosed(id WayID) (bool, error) {
	nodes, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return len(nodes) >= 4 && nodes[0] == nodes[len(nodes)-1], nil
}
