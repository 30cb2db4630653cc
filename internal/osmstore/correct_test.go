package osmstore

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestSignedAreaSign(t *testing.T) {
	ccw := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	cw := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}

	if signedArea(ccw) <= 0 {
		t.Errorf("signedArea(ccw) = %v, want positive", signedArea(ccw))
	}
	if signedArea(cw) >= 0 {
		t.Errorf("signedArea(cw) = %v, want negative", signedArea(cw))
	}
}

func TestCorrectRingWindingReverses(t *testing.T) {
	ring := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	correctRingWinding(ring, false) // want CCW
	if signedArea(ring) <= 0 {
		t.Errorf("after correction signedArea = %v, want positive", signedArea(ring))
	}
}

func TestPointInRing(t *testing.T) {
	square := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}

	if !pointInRing(square, orb.Point{5, 5}) {
		t.Error("expected (5,5) inside square")
	}
	if pointInRing(square, orb.Point{50, 50}) {
		t.Error("expected (50,50) outside square")
	}
}

func TestRingContainsRing(t *testing.T) {
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	inner := orb.Ring{{3, 3}, {7, 3}, {7, 7}, {3, 7}, {3, 3}}
	outside := orb.Ring{{20, 20}, {21, 20}, {21, 21}, {20, 21}, {20, 20}}

	if !ringContainsRing(outer, inner) {
		t.Error("expected outer to contain inner")
	}
	if ringContainsRing(outer, outside) {
		t.Error("expected outer not to contain outside ring")
	}
}
