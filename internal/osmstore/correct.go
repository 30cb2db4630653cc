package osmstore

import "github.com/paulmach/orb"

// No geometry library in the example corpus exposes a winding-order
// normalizer or ring-containment test for orb's plain []Point-based
// Ring/Polygon types (orb/planar's helpers operate on different
// shapes), so this file hand-rolls the shoelace area test and a
// standard ray-casting point-in-ring test. Everything else in this
// package builds on orb and mmap-go; this is the one place that falls
// back to first-party math.

// signedArea returns twice the ring's signed area via the shoelace
// formula: positive for a counterclockwise ring, negative for
// clockwise.
func signedArea(ring orb.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum
}

// correctRingWinding reverses ring in place if its winding doesn't
// match the requested orientation.
func correctRingWinding(ring orb.Ring, clockwise bool) {
	area := signedArea(ring)
	isClockwise := area < 0
	if isClockwise == clockwise {
		return
	}
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}

// correctPolygonWinding normalizes a polygon's outer ring to
// counterclockwise and every inner ring to clockwise, the convention
// RelationAsMultiPolygon and WayAsPolygon both produce.
func correctPolygonWinding(poly orb.Polygon) {
	if len(poly) == 0 {
		return
	}
	correctRingWinding(poly[0], false)
	for _, inner := range poly[1:] {
		correctRingWinding(inner, true)
	}
}

// pointInRing reports whether pt lies inside ring using the standard
// even-odd ray-casting test. Points exactly on the boundary may report
// either way; callers only use this to decide inner/outer ring
// attachment, where that ambiguity doesn't matter.
func pointInRing(ring orb.Ring, pt orb.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi[1] > pt[1]) != (pj[1] > pt[1]) {
			xCross := (pj[0]-pi[0])*(pt[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if pt[0] < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// ringContainsRing reports whether outer contains inner, tested by
// checking inner's first point against outer. This mirrors
// wayListMultiPolygon's use of a single within() check per candidate
// outer rather than testing every inner vertex.
func ringContainsRing(outer, inner orb.Ring) bool {
	if len(inner) == 0 {
		return false
	}
	return pointInRing(outer, inner[0])
}
