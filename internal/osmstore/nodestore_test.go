package osmstore

import (
	"path/filepath"
	"testing"
)

func TestCompactNodeStoreSetGet(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "nodes.bin"), 4096)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	store, err := NewCompactNodeStore(arena)
	if err != nil {
		t.Fatalf("NewCompactNodeStore: %v", err)
	}

	want := LatpLon{Latp: 512345678, Lon: -73123456}
	if err := store.Set(42, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("Get(42) = %+v, want %+v", got, want)
	}
}

func TestCompactNodeStoreUnsetIsZeroValue(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "nodes.bin"), 4096)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	store, err := NewCompactNodeStore(arena)
	if err != nil {
		t.Fatalf("NewCompactNodeStore: %v", err)
	}

	got, err := store.Get(10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (LatpLon{}) {
		t.Errorf("Get(10) on unset id = %+v, want zero value", got)
	}
}

func TestCompactNodeStoreOutOfRange(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "nodes.bin"), 16)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	store, err := NewCompactNodeStore(arena)
	if err != nil {
		t.Fatalf("NewCompactNodeStore: %v", err)
	}

	_, err = store.Get(1_000_000)
	if err != ErrOutOfRange {
		t.Errorf("Get beyond capacity = %v, want ErrOutOfRange", err)
	}
}

func TestCompactNodeStoreGrowsOnDemand(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "nodes.bin"), 16)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	store, err := NewCompactNodeStore(arena)
	if err != nil {
		t.Fatalf("NewCompactNodeStore: %v", err)
	}

	const n = 200_000
	for i := NodeID(0); i < n; i++ {
		ll := LatpLon{Latp: int32(i), Lon: int32(-int64(i))}
		if err := store.Set(i, ll); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	for _, id := range []NodeID{0, 1, n / 2, n - 1} {
		want := LatpLon{Latp: int32(id), Lon: int32(-int64(id))}
		got, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}
		if got != want {
			t.Errorf("Get(%d) = %+v, want %+v", id, got, want)
		}
	}

	if store.Len() < n {
		t.Errorf("Len() = %d, want at least %d", store.Len(), n)
	}
}

func TestCompactNodeStoreReserveRejectsBeyondCeiling(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "nodes.bin"), 4096)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	store, err := NewCompactNodeStore(arena)
	if err != nil {
		t.Fatalf("NewCompactNodeStore: %v", err)
	}

	if err := store.Reserve(100); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := store.Set(50, LatpLon{Latp: 1, Lon: 2}); err != nil {
		t.Fatalf("Set within ceiling: %v", err)
	}

	lenBefore := store.Len()
	if err := store.Set(200, LatpLon{Latp: 3, Lon: 4}); err != ErrOutOfRange {
		t.Fatalf("Set(200, _) with Reserve(100) = %v, want ErrOutOfRange", err)
	}
	if store.Len() != lenBefore {
		t.Errorf("Set beyond ceiling changed Len() from %d to %d", lenBefore, store.Len())
	}
	// 200 is still within the arena's physical capacity (just beyond the
	// reserved ceiling), so Get reads back the zero value rather than
	// erroring: the rejected Set never wrote anything for it to return.
	if got, err := store.Get(200); err != nil || got != (LatpLon{}) {
		t.Errorf("Get(200) after rejected Set = (%+v, %v), want (zero value, nil)", got, err)
	}
}

func TestSparseNodeStoreNotFound(t *testing.T) {
	store := NewSparseNodeStore()
	if err := store.Set(7, LatpLon{Latp: 1, Lon: 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := store.Get(8); err != ErrNotFound {
		t.Errorf("Get(8) = %v, want ErrNotFound", err)
	}

	got, err := store.Get(7)
	if err != nil {
		t.Fatalf("Get(7): %v", err)
	}
	if got != (LatpLon{Latp: 1, Lon: 2}) {
		t.Errorf("Get(7) = %+v, want {1 2}", got)
	}

	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}
