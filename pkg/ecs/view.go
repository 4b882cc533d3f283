package ecs

import (
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// ReadStorage is a shared view of a component column. It holds the column's borrow until
// Release, so no WriteStorage of the same type can exist alongside it.
type ReadStorage[T any] struct {
	col      *column[T]
	entities *entityAllocator
	last     Tick
	this     Tick
	guard    *guard
}

// Get returns a shared view of e's component. Stale or dead entities return an error matching
// ErrWrongGeneration or ErrEntityNotFound.
func (v ReadStorage[T]) Get(e Entity) (Ref[T], error) {
	value, ticks, err := lookupComponent(v.col, v.entities, e, "read")
	if err != nil {
		return Ref[T]{}, err
	}
	return Ref[T]{value: value, ticks: ticks, last: v.last, this: v.this}, nil
}

// Contains reports whether e is alive and has a value in this storage.
func (v ReadStorage[T]) Contains(e Entity) bool {
	return v.entities.isAlive(e) && v.col.storage.Contains(e.Index)
}

func (v ReadStorage[T]) Len() int {
	return v.col.storage.Len()
}

func (v ReadStorage[T]) Release() {
	v.guard.release()
}

func (v ReadStorage[T]) joinMask() (bitmap.Bitmap, joinKind) {
	return v.col.storage.maskRef(), joinConstrained
}

func (v ReadStorage[T]) fetch(index uint32) Ref[T] {
	value, ticks := v.col.storage.slot(index)
	return Ref[T]{value: value, ticks: ticks, last: v.last, this: v.this}
}

// WriteStorage is an exclusive view of a component column.
type WriteStorage[T any] struct {
	col      *column[T]
	entities *entityAllocator
	last     Tick
	this     Tick
	guard    *guard
}

// Get returns a read-only view of e's component that does not mark it changed.
func (v WriteStorage[T]) Get(e Entity) (Ref[T], error) {
	value, ticks, err := lookupComponent(v.col, v.entities, e, "read")
	if err != nil {
		return Ref[T]{}, err
	}
	return Ref[T]{value: value, ticks: ticks, last: v.last, this: v.this}, nil
}

// GetMut returns an exclusive view of e's component.
func (v WriteStorage[T]) GetMut(e Entity) (Mut[T], error) {
	value, ticks, err := lookupComponent(v.col, v.entities, e, "write")
	if err != nil {
		return Mut[T]{}, err
	}
	return Mut[T]{value: value, ticks: ticks, last: v.last, this: v.this}, nil
}

// Insert sets e's component. Returns the previous value when one was replaced.
func (v WriteStorage[T]) Insert(e Entity, value T) (T, bool, error) {
	var zero T
	if err := v.entities.validate(e, "insert into"); err != nil {
		return zero, false, err
	}
	old, replaced := v.col.storage.Insert(e.Index, value, v.this)
	return old, replaced, nil
}

// Remove takes e's component out of the storage.
func (v WriteStorage[T]) Remove(e Entity) (T, error) {
	var zero T
	if err := v.entities.validate(e, "remove from"); err != nil {
		return zero, err
	}
	old, ok := v.col.storage.Remove(e.Index)
	if !ok {
		return zero, eris.Wrapf(ErrComponentNotFound, "%s has no %s", e, v.col.compKey)
	}
	return old, nil
}

func (v WriteStorage[T]) Contains(e Entity) bool {
	return v.entities.isAlive(e) && v.col.storage.Contains(e.Index)
}

func (v WriteStorage[T]) Len() int {
	return v.col.storage.Len()
}

func (v WriteStorage[T]) Release() {
	v.guard.release()
}

func (v WriteStorage[T]) joinMask() (bitmap.Bitmap, joinKind) {
	return v.col.storage.maskRef(), joinConstrained
}

func (v WriteStorage[T]) fetch(index uint32) Mut[T] {
	value, ticks := v.col.storage.slot(index)
	return Mut[T]{value: value, ticks: ticks, last: v.last, this: v.this}
}

func lookupComponent[T any](col *column[T], entities *entityAllocator, e Entity, action string) (*T, *ComponentTicks, error) {
	if err := entities.validate(e, action); err != nil {
		return nil, nil, err
	}
	if !col.storage.Contains(e.Index) {
		return nil, nil, eris.Wrapf(ErrComponentNotFound, "%s has no %s", e, col.compKey)
	}
	value, ticks := col.storage.slot(e.Index)
	return value, ticks, nil
}
