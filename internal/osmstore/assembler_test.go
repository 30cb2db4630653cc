package osmstore

import "testing"

func setNode(t *testing.T, ns NodeStore, id NodeID, lonDeg, latDeg float64) {
	t.Helper()
	if err := ns.Set(id, LatpLon{Latp: int32(latDeg * coordScale), Lon: int32(lonDeg * coordScale)}); err != nil {
		t.Fatalf("Set node %d: %v", id, err)
	}
}

func squareNodes(t *testing.T, ns NodeStore) {
	setNode(t, ns, 1, 0, 0)
	setNode(t, ns, 2, 10, 0)
	setNode(t, ns, 3, 10, 10)
	setNode(t, ns, 4, 0, 10)
}

func innerSquareNodes(t *testing.T, ns NodeStore) {
	setNode(t, ns, 5, 3, 3)
	setNode(t, ns, 6, 7, 3)
	setNode(t, ns, 7, 7, 7)
	setNode(t, ns, 8, 3, 7)
}

// Scenario: a single closed way renders as a one-ring polygon.
func TestWayAsPolygonClosedWay(t *testing.T) {
	nodes := NewSparseNodeStore()
	squareNodes(t, nodes)
	ways := NewWayStore()
	ways.Set(1, []NodeID{1, 2, 3, 4, 1})

	a := NewGeometryAssembler(nodes, ways, NewRelationStore())

	poly, err := a.WayAsPolygon(1)
	if err != nil {
		t.Fatalf("WayAsPolygon: %v", err)
	}
	if len(poly) != 1 {
		t.Fatalf("len(poly) = %d, want 1", len(poly))
	}
	ring := poly[0]
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring not closed: first %v last %v", ring[0], ring[len(ring)-1])
	}
	if signedArea(ring) <= 0 {
		t.Errorf("outer ring signed area = %v, want positive (CCW)", signedArea(ring))
	}
}

// Scenario: two outer ways, head-to-tail, stitch into one closed ring.
func TestRelationAsMultiPolygonStitchesTwoOuters(t *testing.T) {
	nodes := NewSparseNodeStore()
	squareNodes(t, nodes)
	ways := NewWayStore()
	ways.Set(10, []NodeID{1, 2, 3})
	ways.Set(11, []NodeID{3, 4, 1})

	relations := NewRelationStore()
	relations.Set(-1, RelationMembers{Outer: []WayID{10, 11}})

	a := NewGeometryAssembler(nodes, ways, relations)
	mp, err := a.RelationAsMultiPolygon(-1)
	if err != nil {
		t.Fatalf("RelationAsMultiPolygon: %v", err)
	}
	if len(mp) != 1 {
		t.Fatalf("len(mp) = %d, want 1", len(mp))
	}
	ring := mp[0][0]
	if len(ring) != 5 {
		t.Fatalf("len(ring) = %d, want 5 (4 distinct points + closing point)", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("stitched ring not closed: first %v last %v", ring[0], ring[len(ring)-1])
	}
}

// Scenario: one of the two outer ways is stored in reverse traversal
// order, exercising the append-reversed join case.
func TestRelationAsMultiPolygonStitchesReversedWay(t *testing.T) {
	nodes := NewSparseNodeStore()
	squareNodes(t, nodes)
	ways := NewWayStore()
	ways.Set(10, []NodeID{1, 2, 3})
	ways.Set(11, []NodeID{1, 4, 3}) // same edge as way 11 above, reversed

	relations := NewRelationStore()
	relations.Set(-1, RelationMembers{Outer: []WayID{10, 11}})

	a := NewGeometryAssembler(nodes, ways, relations)
	mp, err := a.RelationAsMultiPolygon(-1)
	if err != nil {
		t.Fatalf("RelationAsMultiPolygon: %v", err)
	}
	if len(mp) != 1 {
		t.Fatalf("len(mp) = %d, want 1", len(mp))
	}
	ring := mp[0][0]
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("stitched ring not closed: first %v last %v", ring[0], ring[len(ring)-1])
	}
	if len(ring) != 5 {
		t.Fatalf("len(ring) = %d, want 5", len(ring))
	}
}

// Scenario: an inner ring fully inside an outer ring is attached as a
// hole in the resulting polygon.
func TestRelationAsMultiPolygonAttachesInnerRing(t *testing.T) {
	nodes := NewSparseNodeStore()
	squareNodes(t, nodes)
	innerSquareNodes(t, nodes)

	ways := NewWayStore()
	ways.Set(1, []NodeID{1, 2, 3, 4, 1})
	ways.Set(2, []NodeID{5, 6, 7, 8, 5})

	relations := NewRelationStore()
	relations.Set(-1, RelationMembers{Outer: []WayID{1}, Inner: []WayID{2}})

	a := NewGeometryAssembler(nodes, ways, relations)
	mp, err := a.RelationAsMultiPolygon(-1)
	if err != nil {
		t.Fatalf("RelationAsMultiPolygon: %v", err)
	}
	if len(mp) != 1 {
		t.Fatalf("len(mp) = %d, want 1", len(mp))
	}
	if len(mp[0]) != 2 {
		t.Fatalf("len(polygon rings) = %d, want 2 (outer + 1 inner)", len(mp[0]))
	}
	if signedArea(mp[0][1]) >= 0 {
		t.Errorf("inner ring signed area = %v, want negative (CW)", signedArea(mp[0][1]))
	}
}

func TestMergeMultiPolygonWaysNoJoinsSeedsNewChain(t *testing.T) {
	ways := [][]NodeID{
		{1, 2, 3, 1},
		{10, 11, 12, 10},
	}
	chains := mergeMultiPolygonWays(ways)
	if len(chains) != 2 {
		t.Fatalf("len(chains) = %d, want 2 disjoint rings", len(chains))
	}
}
