package utils

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// Handle addresses one slot of a Table. The generation changes every time the slot is
// vacated, so a Handle held past the removal of its entry never resolves again.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether the handle was never issued by a Table
func (h Handle) IsZero() bool {
	return h.Generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

// Table is a slot table with stable indices and generation counters
type Table[T any] struct {
	lock OptionalRWMutex

	entries     *swiss.Map[Handle, T]
	generations []uint32
	freeIndices []uint32
}

func NewTable[T any](synchronized bool, capacity uint32) *Table[T] {
	return &Table[T]{
		lock:    OptionalRWMutex{Enabled: synchronized},
		entries: swiss.NewMap[Handle, T](capacity),
	}
}

func (t *Table[T]) Insert(value T) Handle {
	t.lock.Lock()
	defer t.lock.Unlock()

	var index uint32
	if len(t.freeIndices) > 0 {
		index = t.freeIndices[len(t.freeIndices)-1]
		t.freeIndices = t.freeIndices[:len(t.freeIndices)-1]
	} else {
		index = uint32(len(t.generations))
		t.generations = append(t.generations, 1)
	}

	handle := Handle{Index: index, Generation: t.generations[index]}
	t.entries.Put(handle, value)
	return handle
}

func (t *Table[T]) Get(handle Handle) (T, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.entries.Get(handle)
}

// Remove vacates the handle's slot and retires its generation. The second return value
// is false if the handle was already stale.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	value, ok := t.entries.Get(handle)
	if !ok {
		return value, false
	}

	t.entries.Delete(handle)
	t.generations[handle.Index]++
	if t.generations[handle.Index] == 0 {
		// Skip the zero generation on wraparound, it marks unissued handles
		t.generations[handle.Index] = 1
	}
	t.freeIndices = append(t.freeIndices, handle.Index)

	return value, true
}

func (t *Table[T]) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.entries.Count()
}

// Handles returns a snapshot of the live handles, in no particular order
func (t *Table[T]) Handles() []Handle {
	t.lock.RLock()
	defer t.lock.RUnlock()

	handles := make([]Handle, 0, t.entries.Count())
	t.entries.Iter(func(handle Handle, _ T) bool {
		handles = append(handles, handle)
		return false
	})
	return handles
}
