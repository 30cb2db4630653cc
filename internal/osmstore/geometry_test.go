package osmstore

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestGeometryStoreAppendAndRetrieve(t *testing.T) {
	store := NewGeometryStore(SourceOSM)

	ph := store.AppendPoint(1, orb.Point{1, 2})
	lh := store.AppendLineString(2, orb.LineString{{0, 0}, {1, 1}})
	mh := store.AppendMultiPolygon(3, orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}})

	pt, err := store.Point(ph)
	if err != nil || pt != (orb.Point{1, 2}) {
		t.Errorf("Point(ph) = %v, %v", pt, err)
	}

	ls, err := store.LineString(lh)
	if err != nil || len(ls) != 2 {
		t.Errorf("LineString(lh) = %v, %v", ls, err)
	}

	mp, err := store.MultiPolygon(mh)
	if err != nil || len(mp) != 1 {
		t.Errorf("MultiPolygon(mh) = %v, %v", mp, err)
	}

	points, lines, polys := store.Counts()
	if points != 1 || lines != 1 || polys != 1 {
		t.Errorf("Counts() = %d %d %d, want 1 1 1", points, lines, polys)
	}
}

func TestGeometryStoreHandleNotFound(t *testing.T) {
	store := NewGeometryStore(SourceSHP)
	if _, err := store.Point(999); err != ErrNotFound {
		t.Errorf("Point(999) = %v, want ErrNotFound", err)
	}
}
