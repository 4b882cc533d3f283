package ecs

import (
	"maps"
	"slices"
	"sync"

	"github.com/funnisimo/goblinwerks/pkg/assert"
)

// cell owns one boxed value. value always holds a *T where T is key.Type().
type cell struct {
	key      ResourceKey
	value    any
	ticks    ComponentTicks
	borrow   borrowFlag
	affinity Affinity
}

func (c *cell) target() string {
	return "resource " + c.key.String()
}

func cellValue[T any](c *cell) *T {
	ptr, ok := c.value.(*T)
	assert.That(ok, "%s holds %T", c.target(), c.value)
	return ptr
}

// Resources is a table of type-keyed singleton values. The mutex only guards the shape of the
// table. Aliasing of individual values is enforced per cell with runtime borrow flags.
type Resources struct {
	mu    sync.RWMutex
	cells map[ResourceKey]*cell
}

func NewResources() *Resources {
	return &Resources{cells: make(map[ResourceKey]*cell)}
}

func (r *Resources) lookup(key ResourceKey) (*cell, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[key]
	return c, ok
}

func (r *Resources) put(key ResourceKey, value any, tick Tick, affinity Affinity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.cells[key]; ok {
		old.affinity.check(old.target())
		if old.borrow.borrowed() {
			panic(BorrowError{Target: old.target(), Want: BorrowExclusive, Held: heldMode(&old.borrow)})
		}
	}
	r.cells[key] = &cell{key: key, value: value, ticks: NewComponentTicks(tick), affinity: affinity}
}

func (r *Resources) take(key ResourceKey) (*cell, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[key]
	if !ok {
		return nil, false
	}
	c.affinity.check(c.target())
	if c.borrow.borrowed() {
		panic(BorrowError{Target: c.target(), Want: BorrowExclusive, Held: heldMode(&c.borrow)})
	}
	delete(r.cells, key)
	return c, true
}

func heldMode(b *borrowFlag) BorrowMode {
	if b.state.Load() == exclusiveBorrow {
		return BorrowExclusive
	}
	return BorrowShared
}

// -------------------------------------------------------------------------------------------------
// Typed access
// -------------------------------------------------------------------------------------------------

// Insert stores value in T's slot, replacing any previous value. Both ticks are reset to tick.
func Insert[T any](r *Resources, value T, tick Tick) {
	InsertKeyed(r, KeyOf[T](), value, tick)
}

// InsertNonShareable stores value pinned to the calling goroutine. Any later access from another
// goroutine panics with an AffinityError.
func InsertNonShareable[T any](r *Resources, value T, tick Tick) {
	r.put(KeyOf[T](), &value, tick, PinnedToCurrent())
}

// InsertDynamic stores value in the slot of T named name.
func InsertDynamic[T any](r *Resources, name string, value T, tick Tick) {
	InsertKeyed(r, DynamicKeyOf[T](name), value, tick)
}

// InsertKeyed stores value under an explicit key. The key's type must be T.
func InsertKeyed[T any](r *Resources, key ResourceKey, value T, tick Tick) {
	assert.That(key.typ == KeyOf[T]().typ, "key %s cannot hold %T", key, value)
	r.put(key, &value, tick, Shareable())
}

// Get returns a shared view of T's slot, or false when the slot is empty. Panics with a
// BorrowError if the slot is exclusively borrowed.
func Get[T any](r *Resources, lastSystemTick, worldTick Tick) (Ref[T], bool) {
	return GetKeyed[T](r, KeyOf[T](), lastSystemTick, worldTick)
}

func GetDynamic[T any](r *Resources, name string, lastSystemTick, worldTick Tick) (Ref[T], bool) {
	return GetKeyed[T](r, DynamicKeyOf[T](name), lastSystemTick, worldTick)
}

func GetKeyed[T any](r *Resources, key ResourceKey, lastSystemTick, worldTick Tick) (Ref[T], bool) {
	value, c, g, ok := borrowCell[T](r, key, BorrowShared)
	if !ok {
		return Ref[T]{}, false
	}
	return Ref[T]{value: value, ticks: &c.ticks, last: lastSystemTick, this: worldTick, guard: g}, true
}

// GetMut returns an exclusive view of T's slot, or false when the slot is empty. Panics with a
// BorrowError if the slot has any outstanding view.
func GetMut[T any](r *Resources, lastSystemTick, worldTick Tick) (Mut[T], bool) {
	return GetMutKeyed[T](r, KeyOf[T](), lastSystemTick, worldTick)
}

func GetMutDynamic[T any](r *Resources, name string, lastSystemTick, worldTick Tick) (Mut[T], bool) {
	return GetMutKeyed[T](r, DynamicKeyOf[T](name), lastSystemTick, worldTick)
}

func GetMutKeyed[T any](r *Resources, key ResourceKey, lastSystemTick, worldTick Tick) (Mut[T], bool) {
	value, c, g, ok := borrowCell[T](r, key, BorrowExclusive)
	if !ok {
		return Mut[T]{}, false
	}
	return Mut[T]{value: value, ticks: &c.ticks, last: lastSystemTick, this: worldTick, guard: g}, true
}

// borrowCell acquires a view on key's cell while the table shape is locked, so the cell cannot be
// replaced or removed between lookup and borrow.
func borrowCell[T any](r *Resources, key ResourceKey, mode BorrowMode) (*T, *cell, *guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cells[key]
	if !ok {
		return nil, nil, nil, false
	}
	c.affinity.check(c.target())
	value := cellValue[T](c)
	return value, c, newGuard(&c.borrow, mode, c.target()), true
}

// Remove takes T's value out of the table.
func Remove[T any](r *Resources) (T, bool) {
	return RemoveKeyed[T](r, KeyOf[T]())
}

func RemoveDynamic[T any](r *Resources, name string) (T, bool) {
	return RemoveKeyed[T](r, DynamicKeyOf[T](name))
}

func RemoveKeyed[T any](r *Resources, key ResourceKey) (T, bool) {
	c, ok := r.take(key)
	if !ok {
		var zero T
		return zero, false
	}
	return *cellValue[T](c), true
}

// EnsureWith inserts factory() into T's slot only if the slot is empty. Returns true if it
// inserted.
func EnsureWith[T any](r *Resources, factory func() T, tick Tick) bool {
	key := KeyOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cells[key]; ok {
		return false
	}
	value := factory()
	r.cells[key] = &cell{key: key, value: &value, ticks: NewComponentTicks(tick)}
	return true
}

func Contains[T any](r *Resources) bool {
	return r.ContainsKey(KeyOf[T]())
}

// -------------------------------------------------------------------------------------------------
// Table operations
// -------------------------------------------------------------------------------------------------

func (r *Resources) ContainsKey(key ResourceKey) bool {
	_, ok := r.lookup(key)
	return ok
}

// Drop removes the value under key without returning it.
func (r *Resources) Drop(key ResourceKey) bool {
	_, ok := r.take(key)
	return ok
}

func (r *Resources) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cells)
}

// Keys returns every occupied key, sorted by name.
func (r *Resources) Keys() []ResourceKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(r.cells), compareKeys)
}

// Ticks returns the ticks stored for key.
func (r *Resources) Ticks(key ResourceKey) (ComponentTicks, bool) {
	c, ok := r.lookup(key)
	if !ok {
		return ComponentTicks{}, false
	}
	return c.ticks, true
}

// Merge moves every slot of other that is empty here into r. Slots present in both keep r's
// value and other's value is dropped. other is empty afterwards. Dropping a value that is borrowed
// or pinned to another goroutine panics before anything moves.
func (r *Resources) Merge(other *Resources) {
	if other == nil || other == r {
		return
	}

	// Lock order is receiver first.
	r.mu.Lock()
	defer r.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	for key, c := range other.cells {
		if _, exists := r.cells[key]; !exists {
			continue
		}
		c.affinity.check(c.target())
		if c.borrow.borrowed() {
			panic(BorrowError{Target: c.target(), Want: BorrowExclusive, Held: heldMode(&c.borrow)})
		}
	}

	for key, c := range other.cells {
		if _, exists := r.cells[key]; !exists {
			r.cells[key] = c
		}
	}
	other.cells = make(map[ResourceKey]*cell)
}

// CheckTicks clamps the ticks of every slot that is not currently borrowed.
func (r *Resources) CheckTicks(worldTick Tick) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cells {
		if !c.borrow.borrowed() {
			c.ticks.CheckTicks(worldTick)
		}
	}
}

// Clear drops every value. Panics if a value is borrowed or pinned to another goroutine.
func (r *Resources) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cells {
		c.affinity.check(c.target())
		if c.borrow.borrowed() {
			panic(BorrowError{Target: c.target(), Want: BorrowExclusive, Held: heldMode(&c.borrow)})
		}
	}
	clear(r.cells)
}

// borrowedKey returns a key with an outstanding view, if any.
func (r *Resources) borrowedKey() (ResourceKey, BorrowMode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, c := range r.cells {
		if c.borrow.borrowed() {
			return key, heldMode(&c.borrow), true
		}
	}
	return ResourceKey{}, 0, false
}
