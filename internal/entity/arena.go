// Package entity provides stable identifiers and index-stable component arenas.
// Components live in dense slices; handles carry a generation so a stale handle
// to a recycled slot is rejected instead of silently aliasing a new entity.
package entity

// ID is the externally visible identifier of an NPC or world object.
// IDs are never reused. Zero means "none".
type ID uint64

// Handle addresses a slot in an Arena.
type Handle struct {
	Index uint32
	Gen   uint32
}

type slot[T any] struct {
	gen   uint32
	alive bool
	value T
}

// Arena is a dense, generation-checked store for one component type.
// Iteration is always in slot index order, so it is reproducible.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// NewArena creates an arena with room for capacity values before growing.
func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{slots: make([]slot[T], 0, capacity)}
}

// Insert stores v and returns its handle. Freed slots are reused lowest-first.
func (a *Arena[T]) Insert(v T) Handle {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.alive = true
		s.value = v
		return Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{gen: 1, alive: true, value: v})
	return Handle{Index: uint32(len(a.slots) - 1), Gen: 1}
}

// Get returns a copy of the value at h. ok is false for stale or removed handles.
func (a *Arena[T]) Get(h Handle) (v T, ok bool) {
	if !a.valid(h) {
		return v, false
	}
	return a.slots[h.Index].value, true
}

// Set writes v back at h. Returns false if h is stale.
func (a *Arena[T]) Set(h Handle, v T) bool {
	if !a.valid(h) {
		return false
	}
	a.slots[h.Index].value = v
	return true
}

// Remove frees the slot at h. Returns false if h is stale.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.valid(h) {
		return false
	}
	s := &a.slots[h.Index]
	var zero T
	s.value = zero
	s.alive = false
	a.live--

	// Keep the free list sorted descending so the lowest index pops first.
	i := len(a.free)
	a.free = append(a.free, h.Index)
	for i > 0 && a.free[i-1] < a.free[i] {
		a.free[i-1], a.free[i] = a.free[i], a.free[i-1]
		i--
	}
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.live
}

// Each visits live values in index order until fn returns false.
func (a *Arena[T]) Each(fn func(h Handle, v T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.alive {
			continue
		}
		if !fn(Handle{Index: uint32(i), Gen: s.gen}, s.value) {
			return
		}
	}
}

// Handles returns all live handles in index order.
func (a *Arena[T]) Handles() []Handle {
	out := make([]Handle, 0, a.live)
	for i := range a.slots {
		if a.slots[i].alive {
			out = append(out, Handle{Index: uint32(i), Gen: a.slots[i].gen})
		}
	}
	return out
}

func (a *Arena[T]) valid(h Handle) bool {
	if int(h.Index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Index]
	return s.alive && s.gen == h.Gen
}
