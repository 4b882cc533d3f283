package ecs

import (
	"github.com/rotisserie/eris"
)

// Observer is what the accessors below read the world through. A *World observes changes since
// its last Maintain; a *SystemContext observes changes since the system last ran.
type Observer interface {
	observedWorld() *World
	resourceTicks() (last, this Tick)
	globalTicks() (last, this Tick)
}

var (
	_ Observer = (*World)(nil)
	_ Observer = (*SystemContext)(nil)
)

// -------------------------------------------------------------------------------------------------
// Resources
// -------------------------------------------------------------------------------------------------

// SetResource inserts or replaces T in the world's resource table.
func SetResource[T any](o Observer, value T) {
	_, this := o.resourceTicks()
	Insert(o.observedWorld().resources, value, this)
}

// EnsureResource inserts T's zero value if the slot is empty.
func EnsureResource[T any](o Observer) {
	EnsureResourceWith(o, func() T {
		var zero T
		return zero
	})
}

// EnsureResourceWith inserts factory() if the slot is empty.
func EnsureResourceWith[T any](o Observer, factory func() T) {
	_, this := o.resourceTicks()
	EnsureWith(o.observedWorld().resources, factory, this)
}

// ReadResource returns a shared view of T. Panics if T is absent.
func ReadResource[T any](o Observer) Ref[T] {
	ref, ok := TryReadResource[T](o)
	if !ok {
		panic(eris.Wrapf(ErrResourceNotFound, "read resource %s", KeyOf[T]()))
	}
	return ref
}

func TryReadResource[T any](o Observer) (Ref[T], bool) {
	last, this := o.resourceTicks()
	return Get[T](o.observedWorld().resources, last, this)
}

// WriteResource returns an exclusive view of T. Panics if T is absent.
func WriteResource[T any](o Observer) Mut[T] {
	mut, ok := TryWriteResource[T](o)
	if !ok {
		panic(eris.Wrapf(ErrResourceNotFound, "write resource %s", KeyOf[T]()))
	}
	return mut
}

func TryWriteResource[T any](o Observer) (Mut[T], bool) {
	last, this := o.resourceTicks()
	return GetMut[T](o.observedWorld().resources, last, this)
}

// -------------------------------------------------------------------------------------------------
// Globals
// -------------------------------------------------------------------------------------------------

// SetGlobal inserts or replaces T in the shared globals table.
func SetGlobal[T any](o Observer, value T) {
	_, this := o.globalTicks()
	Insert(o.observedWorld().globals.Resources, value, this)
}

// EnsureGlobal inserts T's zero value into the globals if the slot is empty.
func EnsureGlobal[T any](o Observer) {
	_, this := o.globalTicks()
	EnsureWith(o.observedWorld().globals.Resources, func() T {
		var zero T
		return zero
	}, this)
}

func ReadGlobal[T any](o Observer) Ref[T] {
	ref, ok := TryReadGlobal[T](o)
	if !ok {
		panic(eris.Wrapf(ErrResourceNotFound, "read global %s", KeyOf[T]()))
	}
	return ref
}

func TryReadGlobal[T any](o Observer) (Ref[T], bool) {
	last, this := o.globalTicks()
	return Get[T](o.observedWorld().globals.Resources, last, this)
}

func WriteGlobal[T any](o Observer) Mut[T] {
	mut, ok := TryWriteGlobal[T](o)
	if !ok {
		panic(eris.Wrapf(ErrResourceNotFound, "write global %s", KeyOf[T]()))
	}
	return mut
}

func TryWriteGlobal[T any](o Observer) (Mut[T], bool) {
	last, this := o.globalTicks()
	return GetMut[T](o.observedWorld().globals.Resources, last, this)
}

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

// ReadComponent returns a shared view of T's column. Panics if T was never registered.
func ReadComponent[T any](o Observer) ReadStorage[T] {
	view, ok := TryReadComponent[T](o)
	if !ok {
		panic(eris.Wrapf(ErrComponentNotRegistered, "read component %s", KeyOf[T]()))
	}
	return view
}

func TryReadComponent[T any](o Observer) (ReadStorage[T], bool) {
	w := o.observedWorld()
	col, ok := columnOf[T](w)
	if !ok {
		return ReadStorage[T]{}, false
	}
	last, this := o.resourceTicks()
	g := newGuard(&col.borrow, BorrowShared, col.target())
	return ReadStorage[T]{col: col, entities: &w.entities, last: last, this: this, guard: g}, true
}

// WriteComponent returns an exclusive view of T's column. Panics if T was never registered.
func WriteComponent[T any](o Observer) WriteStorage[T] {
	view, ok := TryWriteComponent[T](o)
	if !ok {
		panic(eris.Wrapf(ErrComponentNotRegistered, "write component %s", KeyOf[T]()))
	}
	return view
}

func TryWriteComponent[T any](o Observer) (WriteStorage[T], bool) {
	w := o.observedWorld()
	col, ok := columnOf[T](w)
	if !ok {
		return WriteStorage[T]{}, false
	}
	last, this := o.resourceTicks()
	g := newGuard(&col.borrow, BorrowExclusive, col.target())
	return WriteStorage[T]{col: col, entities: &w.entities, last: last, this: this, guard: g}, true
}
