package osmstore

import (
	"fmt"

	"github.com/paulmach/orb"
)

// NodeStoreKind selects which NodeStore implementation a Facade uses.
type NodeStoreKind string

const (
	NodeStoreCompact NodeStoreKind = "compact"
	NodeStoreSparse  NodeStoreKind = "sparse"
)

// FacadeConfig configures a Facade's backing stores.
type FacadeConfig struct {
	// NodeStoreKind selects Compact (mmap-backed, dense) or Sparse
	// (hash map) node storage.
	NodeStoreKind NodeStoreKind
	// ArenaPath is the backing file for the compact node store.
	// Ignored when NodeStoreKind is Sparse.
	ArenaPath string
	// ArenaInitialSize is the initial mmap size in bytes for the
	// compact node store.
	ArenaInitialSize int64
}

// Facade is the single entry point ingestion and assembly code uses.
// It owns the arena (if any) and every store derived from it, and
// wraps mutating operations so that, from the caller's point of view,
// the store simply never runs out of space: an internal grow-and-retry
// happens transparently inside the node store itself.
type Facade struct {
	arena     *Arena
	nodes     NodeStore
	ways      *WayStore
	relations *RelationStore
	osmGeoms  *GeometryStore
	shpGeoms  *GeometryStore
	assembler *GeometryAssembler
}

// NewFacade creates a Facade according to cfg.
func NewFacade(cfg FacadeConfig) (*Facade, error) {
	var nodes NodeStore
	var arena *Arena

	switch cfg.NodeStoreKind {
	case NodeStoreSparse:
		nodes = NewSparseNodeStore()
	case NodeStoreCompact, "":
		initialSize := cfg.ArenaInitialSize
		if initialSize <= 0 {
			initialSize = 1_024_000_000
		}
		a, err := OpenArena(cfg.ArenaPath, initialSize)
		if err != nil {
			return nil, fmt.Errorf("osmstore: open arena: %w", err)
		}
		compact, err := NewCompactNodeStore(a)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("osmstore: create compact node store: %w", err)
		}
		arena = a
		nodes = compact
	default:
		return nil, fmt.Errorf("osmstore: unknown node store kind %q", cfg.NodeStoreKind)
	}

	ways := NewWayStore()
	relations := NewRelationStore()

	return &Facade{
		arena:     arena,
		nodes:     nodes,
		ways:      ways,
		relations: relations,
		osmGeoms:  NewGeometryStore(SourceOSM),
		shpGeoms:  NewGeometryStore(SourceSHP),
		assembler: NewGeometryAssembler(nodes, ways, relations),
	}, nil
}

// Close releases the arena's backing file, if one is in use.
func (f *Facade) Close() error {
	if f.arena != nil {
		return f.arena.Close()
	}
	return nil
}

// Nodes returns the underlying NodeStore.
func (f *Facade) Nodes() NodeStore { return f.nodes }

// Ways returns the underlying WayStore.
func (f *Facade) Ways() *WayStore { return f.ways }

// Relations returns the underlying RelationStore.
func (f *Facade) Relations() *RelationStore { return f.relations }

// OSMGeometries returns the geometry store for OSM-derived geometry.
func (f *Facade) OSMGeometries() *GeometryStore { return f.osmGeoms }

// SHPGeometries returns the geometry store for externally-supplied
// geometry.
func (f *Facade) SHPGeometries() *GeometryStore { return f.shpGeoms }

// Assembler returns the GeometryAssembler bound to this Facade's
// stores.
func (f *Facade) Assembler() *GeometryAssembler { return f.assembler }

// ReserveNodes pre-sizes the node store for up to n node ids, per
// spec's reserve(n) operation. Against a compact store this fixes a
// hard ceiling (see CompactNodeStore.Reserve); against a sparse store
// it is a no-op. n == 0 means "no hint given" and leaves the store as
// constructed.
func (f *Facade) ReserveNodes(n uint64) error {
	if n == 0 {
		return nil
	}
	return f.nodes.Reserve(NodeID(n))
}

// InsertNode stores a node's coordinate. This is a mutating operation:
// against a compact node store it transparently grows the arena on
// out-of-space and retries, so callers never see ErrOutOfSpace.
func (f *Facade) InsertNode(id NodeID, ll LatpLon) error {
	return f.nodes.Set(id, ll)
}

// InsertWay stores a way's ordered node sequence.
func (f *Facade) InsertWay(id WayID, nodes []NodeID) error {
	return f.ways.Set(id, nodes)
}

// InsertRelation stores a multipolygon relation's outer/inner member
// ways under a synthesized pseudo-WayID.
func (f *Facade) InsertRelation(id WayID, members RelationMembers) error {
	return f.relations.Set(id, members)
}

// AssembleWayGeometry resolves way id to a point, linestring or
// polygon depending on its shape and whether asArea is requested, and
// appends the result to the OSM geometry store.
func (f *Facade) AssembleWayGeometry(id WayID, asArea bool) (Handle, error) {
	nodes, err := f.ways.Get(id)
	if err != nil {
		return 0, err
	}

	if len(nodes) == 1 {
		ll, err := f.nodes.Get(nodes[0])
		if err != nil {
			return 0, err
		}
		pt := orb.Point{float64(ll.Lon) / coordScale, float64(ll.Latp) / coordScale}
		return f.osmGeoms.AppendPoint(id, pt), nil
	}

	closed, err := f.ways.IsClosed(id)
	if err != nil {
		return 0, err
	}

	if closed && asArea {
		poly, err := f.assembler.WayAsPolygon(id)
		if err != nil {
			return 0, err
		}
		return f.osmGeoms.AppendMultiPolygon(id, orb.MultiPolygon{poly}), nil
	}

	ls, err := f.assembler.WayAsLineString(id)
	if err != nil {
		return 0, err
	}
	return f.osmGeoms.AppendLineString(id, ls), nil
}

// AssembleRelationGeometry stitches relation id's outer/inner member
// ways into a multipolygon and appends it to the OSM geometry store.
func (f *Facade) AssembleRelationGeometry(id WayID) (Handle, error) {
	mp, err := f.assembler.RelationAsMultiPolygon(id)
	if err != nil {
		return 0, err
	}
	return f.osmGeoms.AppendMultiPolygon(id, mp), nil
}
