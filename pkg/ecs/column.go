package ecs

import (
	"github.com/funnisimo/goblinwerks/pkg/assert"
	"github.com/goccy/go-json"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// abstractColumn is the type-erased face of a registered component column.
type abstractColumn interface {
	key() ResourceKey
	len() int
	borrowed() bool
	held() BorrowMode

	insertAbstract(index uint32, value any, tick Tick)
	drop(index uint32) bool
	checkTicks(worldTick Tick)

	snapshot(entities *entityAllocator) ([]componentSnapshot, error)

	// Used by Search, which holds a shared borrow while it reads.
	acquire(mode BorrowMode) *guard
	maskRef() bitmap.Bitmap
	valueAt(index uint32) any
}

var _ abstractColumn = &column[int]{}

// column is one registered component type: its storage plus the borrow flag shared by every view
// of it.
type column[T any] struct {
	compKey ResourceKey
	storage *MaskedStorage[T]
	borrow  borrowFlag
}

func newColumn[T any]() *column[T] {
	return &column[T]{compKey: KeyOf[T](), storage: NewMaskedStorage[T]()}
}

func (c *column[T]) key() ResourceKey {
	return c.compKey
}

func (c *column[T]) target() string {
	return "component " + c.compKey.String()
}

func (c *column[T]) len() int {
	return c.storage.Len()
}

func (c *column[T]) borrowed() bool {
	return c.borrow.borrowed()
}

func (c *column[T]) held() BorrowMode {
	return heldMode(&c.borrow)
}

// insertAbstract inserts a value whose concrete type is only known at runtime. It takes the
// column's exclusive borrow for the duration of the write.
func (c *column[T]) insertAbstract(index uint32, value any, tick Tick) {
	concrete, ok := value.(T)
	assert.That(ok, "tried to insert %T into %s", value, c.target())

	g := newGuard(&c.borrow, BorrowExclusive, c.target())
	defer g.release()
	c.storage.Insert(index, concrete, tick)
}

func (c *column[T]) acquire(mode BorrowMode) *guard {
	return newGuard(&c.borrow, mode, c.target())
}

func (c *column[T]) maskRef() bitmap.Bitmap {
	return c.storage.maskRef()
}

// valueAt returns a copy of the value at an occupied index.
func (c *column[T]) valueAt(index uint32) any {
	value, _ := c.storage.slot(index)
	return *value
}

// drop is only called by maintain, which has already checked that nothing is borrowed.
func (c *column[T]) drop(index uint32) bool {
	return c.storage.Drop(index)
}

func (c *column[T]) checkTicks(worldTick Tick) {
	c.storage.CheckTicks(worldTick)
}

type componentSnapshot struct {
	Entity  Entity          `json:"entity"`
	Added   Tick            `json:"added"`
	Changed Tick            `json:"changed"`
	Value   json.RawMessage `json:"value"`
}

// snapshot serializes every occupied slot under a shared borrow.
func (c *column[T]) snapshot(entities *entityAllocator) ([]componentSnapshot, error) {
	g := c.acquire(BorrowShared)
	defer g.release()

	var (
		out []componentSnapshot
		err error
	)
	c.storage.maskRef().Range(func(index uint32) {
		if err != nil {
			return
		}
		value, ticks := c.storage.slot(index)
		data, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			err = eris.Wrapf(marshalErr, "failed to serialize %s at index %d", c.target(), index)
			return
		}
		e, _ := entities.entityAt(index)
		out = append(out, componentSnapshot{Entity: e, Added: ticks.Added, Changed: ticks.Changed, Value: data})
	})
	return out, err
}
