package osmstore

import "testing"

func TestWayStoreSetGet(t *testing.T) {
	store := NewWayStore()
	nodes := []NodeID{1, 2, 3, 1}
	if err := store.Set(100, nodes); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(100)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != len(nodes) {
		t.Fatalf("Get(100) = %v, want %v", got, nodes)
	}
	for i := range nodes {
		if got[i] != nodes[i] {
			t.Errorf("Get(100)[%d] = %d, want %d", i, got[i], nodes[i])
		}
	}
}

func TestWayStoreNotFound(t *testing.T) {
	store := NewWayStore()
	if _, err := store.Get(1); err != ErrNotFound {
		t.Errorf("Get(1) = %v, want ErrNotFound", err)
	}
}

func TestWayStoreIsClosed(t *testing.T) {
	store := NewWayStore()
	store.Set(1, []NodeID{1, 2, 3, 1})
	store.Set(2, []NodeID{1, 2, 3})

	closed, err := store.IsClosed(1)
	if err != nil || !closed {
		t.Errorf("IsClosed(1) = %v, %v, want true, nil", closed, err)
	}

	closed, err = store.IsClosed(2)
	if err != nil || closed {
		t.Errorf("IsClosed(2) = %v, %v, want false, nil", closed, err)
	}
}

func TestRelationStoreSetGet(t *testing.T) {
	store := NewRelationStore()
	members := RelationMembers{Outer: []WayID{1, 2}, Inner: []WayID{3}}
	if err := store.Set(-1, members); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(-1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Outer) != 2 || len(got.Inner) != 1 {
		t.Errorf("Get(-1) = %+v, want %+v", got, members)
	}

	if _, err := store.Get(-2); err != ErrNotFound {
		t.Errorf("Get(-2) = %v, want ErrNotFound", err)
	}
}
