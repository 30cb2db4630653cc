package osmstore

import "github.com/paulmach/orb"

const coordScale = 1e7

// GeometryAssembler turns stored node/way/relation data into orb
// geometries. It holds no state of its own beyond the stores it reads
// from: every method is a pure function of what's already in Nodes,
// Ways and Relations.
type GeometryAssembler struct {
	Nodes     NodeStore
	Ways      *WayStore
	Relations *RelationStore
}

// NewGeometryAssembler creates an assembler over the given stores.
func NewGeometryAssembler(nodes NodeStore, ways *WayStore, relations *RelationStore) *GeometryAssembler {
	return &GeometryAssembler{Nodes: nodes, Ways: ways, Relations: relations}
}

// fillPoints resolves a node sequence to coordinates, projecting each
// LatpLon's 1e-7-scaled integer fields back to floating-point degrees.
func (a *GeometryAssembler) fillPoints(nodes []NodeID) ([]orb.Point, error) {
	pts := make([]orb.Point, 0, len(nodes))
	for _, id := range nodes {
		ll, err := a.Nodes.Get(id)
		if err != nil {
			return nil, err
		}
		pts = append(pts, orb.Point{float64(ll.Lon) / coordScale, float64(ll.Latp) / coordScale})
	}
	return pts, nil
}

// WayIsClosed reports whether way id forms a closed ring.
func (a *GeometryAssembler) WayIsClosed(id WayID) (bool, error) {
	return a.Ways.IsClosed(id)
}

// WayAsLineString resolves way id's node sequence to an orb.LineString.
func (a *GeometryAssembler) WayAsLineString(id WayID) (orb.LineString, error) {
	nodes, err := a.Ways.Get(id)
	if err != nil {
		return nil, err
	}
	pts, err := a.fillPoints(nodes)
	if err != nil {
		return nil, err
	}
	return orb.LineString(pts), nil
}

// WayAsPolygon resolves way id to a single-ring orb.Polygon. The way
// must already be closed (WayIsClosed); the caller decides, from
// tags and closure, whether a way should be rendered as an area.
func (a *GeometryAssembler) WayAsPolygon(id WayID) (orb.Polygon, error) {
	ls, err := a.WayAsLineString(id)
	if err != nil {
		return nil, err
	}
	ring := orb.Ring(ls)
	correctRingWinding(ring, false)
	return orb.Polygon{ring}, nil
}

// chain is a node sequence being built up by mergeMultiPolygonWays; it
// may span several source ways stitched end to end.
type chain []NodeID

func reverseNodes(nodes []NodeID) []NodeID {
	rev := make([]NodeID, len(nodes))
	for i, n := range nodes {
		rev[len(nodes)-1-i] = n
	}
	return rev
}

// mergeMultiPolygonWays stitches a set of ways into as few closed
// rings as possible. It repeatedly seeds a chain from the first
// not-yet-used way, then scans the remaining ways for one whose first
// or last node meets either end of the chain, in this order: append
// matching-head, append matching-tail reversed, prepend matching-tail,
// prepend matching-head reversed. It keeps scanning until a full pass
// joins nothing, then seeds the next chain from whatever remains.
// Malformed input that never closes a ring is passed through as-is:
// the caller (stage 2 of RelationAsMultiPolygon) decides what to do
// with an open ring.
func mergeMultiPolygonWays(ways [][]NodeID) []chain {
	done := make([]bool, len(ways))
	var chains []chain

	for {
		seed := -1
		for i, d := range done {
			if !d && len(ways[i]) > 0 {
				seed = i
				break
			}
		}
		if seed == -1 {
			break
		}
		done[seed] = true
		cur := append(chain{}, ways[seed]...)

		for {
			joined := false
			for i, d := range done {
				if d {
					continue
				}
				n := ways[i]
				if len(n) == 0 {
					continue
				}
				switch {
				case cur[len(cur)-1] == n[0]:
					cur = append(cur, n[1:]...)
					done[i] = true
					joined = true
				case cur[len(cur)-1] == n[len(n)-1]:
					rev := reverseNodes(n)
					cur = append(cur, rev[1:]...)
					done[i] = true
					joined = true
				case n[len(n)-1] == cur[0]:
					merged := append(append(chain{}, n[:len(n)-1]...), cur...)
					cur = merged
					done[i] = true
					joined = true
				case n[0] == cur[0]:
					rev := reverseNodes(n)
					merged := append(append(chain{}, rev[:len(rev)-1]...), cur...)
					cur = merged
					done[i] = true
					joined = true
				}
			}
			if !joined {
				break
			}
		}
		chains = append(chains, cur)
	}
	return chains
}

// RelationAsMultiPolygon assembles a multipolygon relation's outer and
// inner member ways into an orb.MultiPolygon in three stages: stitch
// outers and inners independently, attach every inner ring to every
// outer ring that geometrically contains it (a relation with
// ambiguous or self-overlapping inner/outer membership can legitimately
// attach one inner ring under more than one outer — that is preserved
// rather than resolved), then correct ring winding.
func (a *GeometryAssembler) RelationAsMultiPolygon(id WayID) (orb.MultiPolygon, error) {
	members, err := a.Relations.Get(id)
	if err != nil {
		return nil, err
	}

	outerNodes := make([][]NodeID, len(members.Outer))
	for i, wid := range members.Outer {
		nodes, err := a.Ways.Get(wid)
		if err != nil {
			return nil, err
		}
		outerNodes[i] = nodes
	}

	innerNodes := make([][]NodeID, len(members.Inner))
	for i, wid := range members.Inner {
		nodes, err := a.Ways.Get(wid)
		if err != nil {
			return nil, err
		}
		innerNodes[i] = nodes
	}

	outerChains := mergeMultiPolygonWays(outerNodes)
	innerChains := mergeMultiPolygonWays(innerNodes)

	outerRings := make([]orb.Ring, 0, len(outerChains))
	for _, c := range outerChains {
		pts, err := a.fillPoints(c)
		if err != nil {
			return nil, err
		}
		outerRings = append(outerRings, orb.Ring(pts))
	}

	innerRings := make([]orb.Ring, 0, len(innerChains))
	for _, c := range innerChains {
		pts, err := a.fillPoints(c)
		if err != nil {
			return nil, err
		}
		innerRings = append(innerRings, orb.Ring(pts))
	}

	polygons := make([]orb.Polygon, len(outerRings))
	for i, outer := range outerRings {
		polygons[i] = orb.Polygon{outer}
	}
	for _, inner := range innerRings {
		if len(inner) == 0 {
			continue
		}
		attached := false
		for i, outer := range outerRings {
			if ringContainsRing(outer, inner) {
				polygons[i] = append(polygons[i], inner)
				attached = true
			}
		}
		_ = attached // an inner ring matching no outer is dropped, matching upstream behavior
	}

	mp := make(orb.MultiPolygon, len(polygons))
	for i, poly := range polygons {
		correctPolygonWinding(poly)
		mp[i] = poly
	}
	return mp, nil
}
