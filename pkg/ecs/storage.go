package ecs

import (
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// storagePageSize is the number of slots per page. Pages are never reallocated, so pointers
// handed out by slot stay valid while the storage grows.
const storagePageSize = 128

type storagePage[T any] struct {
	slots [storagePageSize]T
	ticks [storagePageSize]ComponentTicks
}

// MaskedStorage is a paged, index-addressed component store. The mask bit for an index is set
// iff the slot at that index holds a value, and only Insert, Remove and Drop change either.
type MaskedStorage[T any] struct {
	mask  bitmap.Bitmap
	pages []*storagePage[T]
	count int
}

func NewMaskedStorage[T any]() *MaskedStorage[T] {
	return &MaskedStorage[T]{pages: make([]*storagePage[T], 0, 1)}
}

// grow adds pages until index is addressable. Existing pages are kept as they are.
func (s *MaskedStorage[T]) grow(index uint32) {
	need := int(index/storagePageSize) + 1
	for len(s.pages) < need {
		s.pages = append(s.pages, new(storagePage[T]))
	}
}

// at returns pointers to the value and ticks at an addressable index.
func (s *MaskedStorage[T]) at(index uint32) (*T, *ComponentTicks) {
	page := s.pages[index/storagePageSize]
	offset := index % storagePageSize
	return &page.slots[offset], &page.ticks[offset]
}

// capacity is the number of addressable slots.
func (s *MaskedStorage[T]) capacity() int {
	return len(s.pages) * storagePageSize
}

// Insert writes value at index with both ticks set to tick. Returns the previous value if the
// slot was occupied.
func (s *MaskedStorage[T]) Insert(index uint32, value T, tick Tick) (T, bool) {
	s.grow(index)

	slot, ticks := s.at(index)
	var old T
	replaced := s.mask.Contains(index)
	if replaced {
		old = *slot
	} else {
		s.mask.Set(index)
		s.count++
	}
	*slot = value
	*ticks = NewComponentTicks(tick)
	return old, replaced
}

// Remove clears index and returns the value it held.
func (s *MaskedStorage[T]) Remove(index uint32) (T, bool) {
	var zero T
	if !s.mask.Contains(index) {
		return zero, false
	}
	slot, ticks := s.at(index)
	old := *slot
	s.mask.Remove(index)
	*slot = zero
	*ticks = ComponentTicks{}
	s.count--
	return old, true
}

// Drop clears index without returning its value.
func (s *MaskedStorage[T]) Drop(index uint32) bool {
	_, ok := s.Remove(index)
	return ok
}

func (s *MaskedStorage[T]) Contains(index uint32) bool {
	return s.mask.Contains(index)
}

func (s *MaskedStorage[T]) Len() int {
	return s.count
}

// Get returns a copy of the value at index.
func (s *MaskedStorage[T]) Get(index uint32) (T, bool) {
	if !s.mask.Contains(index) {
		var zero T
		return zero, false
	}
	slot, _ := s.at(index)
	return *slot, true
}

// Ticks returns the ticks stored for index.
func (s *MaskedStorage[T]) Ticks(index uint32) (ComponentTicks, bool) {
	if !s.mask.Contains(index) {
		return ComponentTicks{}, false
	}
	_, ticks := s.at(index)
	return *ticks, true
}

// Mask returns a copy of the occupancy mask.
func (s *MaskedStorage[T]) Mask() bitmap.Bitmap {
	return s.mask.Clone(nil)
}

// CheckTicks clamps the ticks of every occupied slot.
func (s *MaskedStorage[T]) CheckTicks(worldTick Tick) {
	s.mask.Range(func(index uint32) {
		_, ticks := s.at(index)
		ticks.CheckTicks(worldTick)
	})
}

// Clear empties the storage, keeping its capacity.
func (s *MaskedStorage[T]) Clear() {
	s.mask.Clear()
	for _, page := range s.pages {
		*page = storagePage[T]{}
	}
	s.count = 0
}

// slot returns pointers into the occupied slot at index. The pointers survive later growth.
// Panics if the slot is empty.
func (s *MaskedStorage[T]) slot(index uint32) (*T, *ComponentTicks) {
	if !s.mask.Contains(index) {
		panic(eris.Errorf("component slot %d is not occupied", index))
	}
	return s.at(index)
}

// maskRef exposes the live mask to joins, which only read it while holding the column borrow.
func (s *MaskedStorage[T]) maskRef() bitmap.Bitmap {
	return s.mask
}
