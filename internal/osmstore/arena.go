package osmstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Handle is an opaque reference into the store, valid for the lifetime
// of the Facade that issued it. Handles are stable across arena growth:
// unlike a raw pointer or slice index they never need to be relocated
// when the backing mapping is replaced.
type Handle uint64

// rebinder is a named sub-container that holds a view over the arena's
// mmap and must be reattached to the new mapping whenever the arena
// grows. CompactNodeStore is the only rebinder in practice, but the
// hook is general so the Facade doesn't need to know the concrete
// store types.
type rebinder interface {
	rebind(data mmap.MMap) error
}

// Arena owns the single memory-mapped file backing fixed-size record
// storage (currently only CompactNodeStore). Variable-length data
// (ways, relations, geometries) is kept in ordinary heap-allocated Go
// structures addressed through a HandleTable, since Go's non-moving
// collector already gives those values a stable address for as long as
// something references them; the arena's mmap-and-resize dance is only
// needed for the flat node record array, which is the one structure in
// this package whose layout is legitimately "an array of bytes".
type Arena struct {
	mu       sync.RWMutex
	file     *os.File
	data     mmap.MMap
	size     int64
	rebinds  []rebinder
}

// OpenArena opens (creating if necessary) the file at path and maps
// it. A new or empty file is sized to initialSize; an existing file
// from a prior process is left at whatever size it already grew to,
// so reopening the arena a second process created never discards data
// a previous Grow wrote past initialSize.
func OpenArena(path string, initialSize int64) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("osmstore: open arena file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("osmstore: stat arena file: %w", err)
	}

	size := initialSize
	if info.Size() > initialSize {
		size = info.Size()
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("osmstore: truncate arena file: %w", err)
	}
	initialSize = size

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("osmstore: mmap arena file: %w", err)
	}

	return &Arena{
		file: f,
		data: data,
		size: initialSize,
	}, nil
}

// Close unmaps and closes the backing file.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.data != nil {
		err = a.data.Unmap()
		a.data = nil
	}
	if cerr := a.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Size reports the current mapping size in bytes.
func (a *Arena) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// Bytes returns the current mapping. Callers must not retain the
// returned slice across a Grow: it becomes invalid the moment the
// arena remaps, which is exactly why mmap-backed stores register
// themselves as rebinders instead of caching this slice directly.
func (a *Arena) Bytes() mmap.MMap {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data
}

// register attaches a rebinder that will be notified on every Grow.
// It is called once, at store construction time, with the arena held
// so the store can take its first binding under the same lock that
// later protects rebinding.
func (a *Arena) register(r rebinder) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rebinds = append(a.rebinds, r)
	return r.rebind(a.data)
}

// Grow doubles the backing file and mapping, then rebinds every
// registered sub-container to the new mapping. This mirrors
// perform_mmap_operation's grow-and-retry step: detach the mapping,
// extend the file, remap, rebind named containers.
func (a *Arena) Grow() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	newSize := a.size * 2
	if newSize == 0 {
		newSize = 64 * 1024 * 1024
	}

	if err := a.data.Unmap(); err != nil {
		return fmt.Errorf("%w: unmap before growth: %v", ErrGrowthFailure, err)
	}
	a.data = nil

	if err := a.file.Truncate(newSize); err != nil {
		return fmt.Errorf("%w: extend backing file: %v", ErrGrowthFailure, err)
	}

	data, err := mmap.Map(a.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: remap after growth: %v", ErrGrowthFailure, err)
	}
	a.data = data
	a.size = newSize

	for _, r := range a.rebinds {
		if err := r.rebind(a.data); err != nil {
			return fmt.Errorf("%w: rebind after growth: %v", ErrGrowthFailure, err)
		}
	}

	return nil
}

// withRetry runs op, and on ErrOutOfSpace grows the arena and retries.
// Any other error (including ErrGrowthFailure) is returned immediately.
// This is the Go expression of perform_mmap_operation: every mutating
// Facade method is a single call to withRetry.
func (a *Arena) withRetry(op func() error) error {
	for {
		err := op()
		if err == nil {
			return nil
		}
		if !isOutOfSpace(err) {
			return err
		}
		if growErr := a.Grow(); growErr != nil {
			return growErr
		}
	}
}

func isOutOfSpace(err error) bool {
	return err == ErrOutOfSpace
}

// HandleTable is a monotonically-keyed map from Handle to *T. It is
// the stand-in for arena-relative offsets used by variable-length
// containers (ways, relations, geometries): Go's garbage collector
// never moves a live heap object out from under a pointer, so a plain
// map keyed by an ever-increasing counter gives the same "stable
// reference across growth" property the C++ original gets from
// storing byte offsets into an mmap region.
type HandleTable[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[Handle]*T
}

// NewHandleTable creates an empty handle table. next starts at 1 so
// the zero Handle can be used as a sentinel for "no handle".
func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{
		next:  1,
		items: make(map[Handle]*T),
	}
}

// Insert stores value and returns a fresh handle for it.
func (h *HandleTable[T]) Insert(value T) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle := Handle(h.next)
	h.next++
	h.items[handle] = &value
	return handle
}

// Get retrieves the value for handle, or ErrNotFound if it does not
// exist.
func (h *HandleTable[T]) Get(handle Handle) (*T, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.items[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Len returns the number of entries currently stored.
func (h *HandleTable[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Range calls fn once for every entry currently stored, in no
// particular order. fn must not call back into the same HandleTable.
func (h *HandleTable[T]) Range(fn func(Handle, *T)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for handle, v := range h.items {
		fn(handle, v)
	}
}
