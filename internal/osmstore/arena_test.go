package osmstore

import (
	"path/filepath"
	"testing"

	"github.com/edsrzf/mmap-go"
)

func TestArenaGrowDoublesAndRebinds(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "arena.bin"), 64)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	if arena.Size() != 64 {
		t.Fatalf("Size() = %d, want 64", arena.Size())
	}

	rebound := false
	arena.register(rebinderFunc(func(data mmap.MMap) error {
		rebound = true
		return nil
	}))
	rebound = false // register binds once immediately; only count the rebind Grow triggers

	if err := arena.Grow(); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if arena.Size() != 128 {
		t.Errorf("Size() after Grow = %d, want 128", arena.Size())
	}
	if !rebound {
		t.Error("registered rebinder was not notified of growth")
	}
}

func TestArenaWithRetryGrowsOnOutOfSpace(t *testing.T) {
	arena, err := OpenArena(filepath.Join(t.TempDir(), "arena.bin"), 16)
	if err != nil {
		t.Fatalf("OpenArena: %v", err)
	}
	defer arena.Close()

	attempts := 0
	err = arena.withRetry(func() error {
		attempts++
		if attempts < 3 {
			return ErrOutOfSpace
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if arena.Size() != 64 {
		t.Errorf("Size() after two grows = %d, want 64", arena.Size())
	}
}

// rebinderFunc adapts a plain function to the rebinder interface for
// tests that only care whether rebind was invoked.
type rebinderFunc func(data mmap.MMap) error

func (f rebinderFunc) rebind(data mmap.MMap) error {
	return f(data)
}
