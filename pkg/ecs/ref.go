package ecs

// Ref is a shared view of a tracked value. Views handed out by a Resources table hold a borrow
// until Release is called; views yielded by a join are covered by their storage's borrow and
// Release is a no-op on them.
type Ref[T any] struct {
	value *T
	ticks *ComponentTicks
	last  Tick
	this  Tick
	guard *guard
}

// Get returns a copy of the value.
func (r Ref[T]) Get() T {
	return *r.value
}

func (r Ref[T]) Ticks() ComponentTicks {
	return *r.ticks
}

// IsAdded reports whether the value was inserted after the observer last ran.
func (r Ref[T]) IsAdded() bool {
	return r.ticks.IsAdded(r.last, r.this)
}

// IsChanged reports whether the value was inserted or exclusively borrowed after the observer
// last ran.
func (r Ref[T]) IsChanged() bool {
	return r.ticks.IsChanged(r.last, r.this)
}

// Release ends the borrow. Safe to call more than once.
func (r Ref[T]) Release() {
	r.guard.release()
}

// Mut is an exclusive view of a tracked value. Writing through Ptr or Set stamps the value's
// Changed tick with the current tick.
type Mut[T any] struct {
	value *T
	ticks *ComponentTicks
	last  Tick
	this  Tick
	guard *guard
}

// Get returns a copy of the value without marking it changed.
func (m Mut[T]) Get() T {
	return *m.value
}

// Ptr returns a pointer to the value and marks it changed.
func (m Mut[T]) Ptr() *T {
	m.ticks.SetChanged(m.this)
	return m.value
}

// Set replaces the value and marks it changed.
func (m Mut[T]) Set(value T) {
	*m.value = value
	m.ticks.SetChanged(m.this)
}

func (m Mut[T]) Ticks() ComponentTicks {
	return *m.ticks
}

func (m Mut[T]) IsAdded() bool {
	return m.ticks.IsAdded(m.last, m.this)
}

func (m Mut[T]) IsChanged() bool {
	return m.ticks.IsChanged(m.last, m.this)
}

// Release ends the borrow. Safe to call more than once.
func (m Mut[T]) Release() {
	m.guard.release()
}
