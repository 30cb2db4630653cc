package osmstore

import (
	"path/filepath"
	"testing"
)

func TestFacadeCompactEndToEnd(t *testing.T) {
	f, err := NewFacade(FacadeConfig{
		NodeStoreKind:    NodeStoreCompact,
		ArenaPath:        filepath.Join(t.TempDir(), "nodes.bin"),
		ArenaInitialSize: 64,
	})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	defer f.Close()

	squareNodes(t, f.Nodes())

	if err := f.InsertWay(1, []NodeID{1, 2, 3, 4, 1}); err != nil {
		t.Fatalf("InsertWay: %v", err)
	}

	handle, err := f.AssembleWayGeometry(1, true)
	if err != nil {
		t.Fatalf("AssembleWayGeometry: %v", err)
	}

	mp, err := f.OSMGeometries().MultiPolygon(handle)
	if err != nil {
		t.Fatalf("MultiPolygon: %v", err)
	}
	if len(mp) != 1 {
		t.Fatalf("len(mp) = %d, want 1", len(mp))
	}
}

func TestFacadeSparseNodeStore(t *testing.T) {
	f, err := NewFacade(FacadeConfig{NodeStoreKind: NodeStoreSparse})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	defer f.Close()

	if err := f.InsertNode(99, LatpLon{Latp: 1, Lon: 2}); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}

	ll, err := f.Nodes().Get(99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ll != (LatpLon{Latp: 1, Lon: 2}) {
		t.Errorf("Get(99) = %+v", ll)
	}
}

func TestFacadeWayAsLineStringWhenNotArea(t *testing.T) {
	f, err := NewFacade(FacadeConfig{NodeStoreKind: NodeStoreSparse})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	defer f.Close()

	squareNodes(t, f.Nodes())
	if err := f.InsertWay(2, []NodeID{1, 2, 3}); err != nil {
		t.Fatalf("InsertWay: %v", err)
	}

	handle, err := f.AssembleWayGeometry(2, false)
	if err != nil {
		t.Fatalf("AssembleWayGeometry: %v", err)
	}

	ls, err := f.OSMGeometries().LineString(handle)
	if err != nil {
		t.Fatalf("LineString: %v", err)
	}
	if len(ls) != 3 {
		t.Errorf("len(ls) = %d, want 3", len(ls))
	}
}
