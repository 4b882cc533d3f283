package ecs

import (
	"testing"

	"github.com/funnisimo/goblinwerks/pkg/testutils"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T, opts WorldOptions) *World {
	t.Helper()
	w, err := NewWorld(opts)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestNewWorld_Defaults(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	assert.NotEmpty(t, w.ID(), "an empty id gets a generated one")
	assert.Equal(t, Tick(1), w.Tick())
	assert.Equal(t, Tick(0), w.LastMaintained())
	assert.Equal(t, 1, w.Globals().Refs())

	named := newTestWorld(t, WorldOptions{ID: "dungeon-1", ExecutionMode: ExecutionSequential})
	assert.Equal(t, "dungeon-1", named.ID())
	assert.Equal(t, ExecutionSequential, named.options.ExecutionMode)
}

func TestNewWorld_InvalidEnv(t *testing.T) {
	t.Setenv("GW_EXECUTION_MODE", "sideways")
	_, err := NewWorld(WorldOptions{})
	assert.Error(t, err)
}

func TestWorld_SpawnAndViews(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	assert.True(t, Register[testutils.Position](w))
	assert.False(t, Register[testutils.Position](w), "registering twice is a no-op")
	Register[testutils.Velocity](w)

	a := w.Spawn(testutils.Position{X: 1}, testutils.Velocity{DX: 1})
	b := w.CreateEntity().With(testutils.Position{X: 2}).Build()

	positions := ReadComponent[testutils.Position](w)
	ref, err := positions.Get(b)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Get().X)
	assert.Equal(t, 2, positions.Len())
	positions.Release()

	velocities := WriteComponent[testutils.Velocity](w)
	_, err = velocities.GetMut(b)
	assert.ErrorIs(t, err, ErrComponentNotFound)
	_, replaced, err := velocities.Insert(b, testutils.Velocity{DY: 3})
	require.NoError(t, err)
	assert.False(t, replaced)
	old, err := velocities.Remove(a)
	require.NoError(t, err)
	assert.Equal(t, testutils.Velocity{DX: 1}, old)
	velocities.Release()

	assert.Equal(t, []string{"testutils.Position", "testutils.Velocity"}, w.ComponentNames())
}

func TestWorld_UnregisteredComponent(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	_, ok := TryReadComponent[testutils.Health](w)
	assert.False(t, ok)
	_, ok = TryWriteComponent[testutils.Health](w)
	assert.False(t, ok)

	assert.Panics(t, func() { ReadComponent[testutils.Health](w) })
	assert.Panics(t, func() { w.Spawn(testutils.Health{}) })
}

func TestWorld_ColumnBorrowRules(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	Register[testutils.Position](w)

	r1 := ReadComponent[testutils.Position](w)
	r2 := ReadComponent[testutils.Position](w)
	requireBorrowPanic(t, func() { WriteComponent[testutils.Position](w) })
	r1.Release()
	r2.Release()

	wr := WriteComponent[testutils.Position](w)
	requireBorrowPanic(t, func() { ReadComponent[testutils.Position](w) })
	requireBorrowPanic(t, func() { w.Spawn(testutils.Position{}) })
	wr.Release()
}

func TestWorld_DeleteAndMaintain(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	Register[testutils.Position](w)

	e := w.Spawn(testutils.Position{X: 1})
	keep := w.Spawn(testutils.Position{X: 2})
	require.NoError(t, w.DeleteEntity(e))
	assert.False(t, w.IsAlive(e))
	assert.ErrorIs(t, w.DeleteEntity(e), ErrEntityNotFound)

	// Until maintain the component is still stored, but the dead entity does not resolve and an
	// Entities join skips it.
	positions := ReadComponent[testutils.Position](w)
	assert.Equal(t, 2, positions.Len())
	_, err := positions.Get(e)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	var joined []Entity
	for _, row := range Join2(w.Entities(), positions) {
		joined = append(joined, row.A)
	}
	assert.Equal(t, []Entity{keep}, joined)
	positions.Release()

	w.Maintain()
	assert.Equal(t, Tick(2), w.Tick())
	assert.Equal(t, Tick(1), w.LastMaintained())

	positions = ReadComponent[testutils.Position](w)
	assert.Equal(t, 1, positions.Len())
	positions.Release()

	// Index reuse bumps the generation, so the stale handle cannot touch the new entity.
	reused := w.Spawn(testutils.Position{X: 3})
	require.Equal(t, e.Index, reused.Index)

	writes := WriteComponent[testutils.Position](w)
	_, _, err = writes.Insert(e, testutils.Position{X: 99})
	assert.ErrorIs(t, err, ErrWrongGeneration)
	_, err = writes.Remove(e)
	assert.ErrorIs(t, err, ErrWrongGeneration)
	writes.Release()

	positions = ReadComponent[testutils.Position](w)
	ref, err := positions.Get(reused)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Get().X)
	positions.Release()
	assert.Equal(t, 2, w.EntityCount())
}

func TestWorld_MaintainPanicsWhileBorrowed(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	Register[testutils.Position](w)
	SetResource(w, testutils.Counter{})

	view := ReadComponent[testutils.Position](w)
	requireBorrowPanic(t, w.Maintain)
	view.Release()

	counter := WriteResource[testutils.Counter](w)
	be := requireBorrowPanic(t, w.Maintain)
	assert.Equal(t, BorrowExclusive, be.Held)
	counter.Release()

	w.Maintain()
}

func TestWorld_ResourceAccessors(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	_, ok := TryReadResource[testutils.Counter](w)
	assert.False(t, ok)
	_, ok = TryWriteResource[testutils.Counter](w)
	assert.False(t, ok)
	assert.Panics(t, func() { ReadResource[testutils.Counter](w) })
	assert.Panics(t, func() { WriteResource[testutils.Counter](w) })

	EnsureResource[testutils.Counter](w)
	EnsureResourceWith(w, func() testutils.Counter { return testutils.Counter{Value: 100} })
	ref := ReadResource[testutils.Counter](w)
	assert.Equal(t, 0, ref.Get().Value, "ensure keeps the first value")
	ref.Release()
}

// World-level observers see changes made since the last maintain.
func TestWorld_ChangeDetectionAcrossMaintain(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	SetResource(w, testutils.Counter{})
	w.Maintain()

	ref := ReadResource[testutils.Counter](w)
	assert.False(t, ref.IsChanged(), "insert happened before the maintain")
	ref.Release()

	mut := WriteResource[testutils.Counter](w)
	mut.Ptr().Value++
	mut.Release()

	ref = ReadResource[testutils.Counter](w)
	assert.True(t, ref.IsChanged())
	assert.Equal(t, 1, ref.Get().Value)
	ref.Release()

	w.Maintain()
	ref = ReadResource[testutils.Counter](w)
	assert.False(t, ref.IsChanged())
	ref.Release()
}

func TestWorld_SharedGlobals(t *testing.T) {
	t.Parallel()

	globals := NewGlobals()
	w1 := newTestWorld(t, WorldOptions{ID: "w1", Globals: globals})
	w2 := newTestWorld(t, WorldOptions{ID: "w2", Globals: globals})
	assert.Equal(t, 3, globals.Refs())

	SetGlobal(w1, testutils.Clock{Turn: 1})
	EnsureGlobal[testutils.Clock](w2)

	mut := WriteGlobal[testutils.Clock](w2)
	mut.Ptr().Turn++
	mut.Release()

	ref := ReadGlobal[testutils.Clock](w1)
	assert.Equal(t, uint64(2), ref.Get().Turn)
	ref.Release()

	_, ok := TryReadResource[testutils.Clock](w1)
	assert.False(t, ok, "globals and resources are separate tables")

	w1.Maintain()
	assert.Equal(t, Tick(2), globals.Tick())
	assert.Equal(t, Tick(1), globals.LastMaintained())
}

func TestGlobals_Refcount(t *testing.T) {
	t.Parallel()

	g := NewGlobals()
	Insert(g.Resources, testutils.Counter{Value: 1}, g.Tick())
	g.Acquire()
	assert.Equal(t, 2, g.Refs())

	assert.False(t, g.Release())
	assert.Equal(t, 1, g.Len())

	assert.True(t, g.Release())
	assert.Equal(t, 0, g.Len())
	assert.Panics(t, func() { g.Release() })
}

func TestWorld_MergeResources(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	other := newTestWorld(t, WorldOptions{})
	SetResource(w, testutils.Counter{Value: 1})
	SetResource(other, testutils.Counter{Value: 2})
	SetResource(other, testutils.MessageLog{Lines: []string{"merged"}})

	w.MergeResources(other)

	counter := ReadResource[testutils.Counter](w)
	assert.Equal(t, 1, counter.Get().Value)
	counter.Release()
	messages := ReadResource[testutils.MessageLog](w)
	assert.Equal(t, []string{"merged"}, messages.Get().Lines)
	messages.Release()
	assert.Equal(t, 0, other.Resources().Len())
}

func TestWorld_Events(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	RegisterEvent[testutils.DamageEvent](w)
	RegisterEvent[testutils.DamageEvent](w)

	early := NewEventReader[testutils.DamageEvent]()
	late := NewEventReader[testutils.DamageEvent]()

	SendEvent(w, testutils.DamageEvent{Target: 1, Amount: 3})
	assert.Equal(t, []testutils.DamageEvent{{Target: 1, Amount: 3}}, ReadEvents(w, early))

	w.Maintain()
	SendEvent(w, testutils.DamageEvent{Target: 2, Amount: 4})
	assert.Equal(t, []testutils.DamageEvent{{Target: 2, Amount: 4}}, ReadEvents(w, early))
	assert.Empty(t, ReadEvents(w, early))

	// Events survive one maintain, then are dropped.
	w.Maintain()
	w.Maintain()
	SendEvent(w, testutils.DamageEvent{Target: 3, Amount: 5})
	assert.Equal(t, []testutils.DamageEvent{{Target: 3, Amount: 5}}, ReadEvents(w, late))
}

func TestWorld_DebugSnapshot(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{ID: "snap"})
	Register[testutils.Position](w)
	e := w.Spawn(testutils.Position{X: 4, Y: 2})
	SetResource(w, testutils.Counter{})

	data, err := w.DebugSnapshot()
	require.NoError(t, err)

	var snap worldSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "snap", snap.ID)
	assert.Equal(t, 1, snap.Entities)
	assert.Equal(t, []string{"testutils.Counter"}, snap.Resources)

	rows := snap.Components["testutils.Position"]
	require.Len(t, rows, 1)
	assert.Equal(t, e, rows[0].Entity)
	assert.JSONEq(t, `{"X":4,"Y":2}`, string(rows[0].Value))
}

// A Mut taken before the column grows still writes to the stored slot.
func TestWorld_MutSurvivesColumnGrowth(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	Register[testutils.Position](w)
	first := w.Spawn(testutils.Position{X: 1})
	var last Entity
	for range 3 * storagePageSize {
		last = w.CreateEntity().Build()
	}

	positions := WriteComponent[testutils.Position](w)
	mut, err := positions.GetMut(first)
	require.NoError(t, err)
	_, _, err = positions.Insert(last, testutils.Position{X: 7})
	require.NoError(t, err)
	mut.Set(testutils.Position{X: 99})

	ref, err := positions.Get(first)
	require.NoError(t, err)
	assert.Equal(t, 99, ref.Get().X)
	assert.Equal(t, w.Tick(), ref.Ticks().Changed)
	positions.Release()
}

func TestWorld_JoinRowSurvivesColumnGrowth(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t, WorldOptions{})
	Register[testutils.Position](w)
	first := w.Spawn(testutils.Position{X: 1})
	var last Entity
	for range 3 * storagePageSize {
		last = w.CreateEntity().Build()
	}

	positions := WriteComponent[testutils.Position](w)
	for _, mut := range Join1(positions) {
		_, _, err := positions.Insert(last, testutils.Position{X: 7})
		require.NoError(t, err)
		mut.Ptr().X = 42
		break
	}

	ref, err := positions.Get(first)
	require.NoError(t, err)
	assert.Equal(t, 42, ref.Get().X)
	positions.Release()
}

func TestEventReader_MovedToFreshQueue(t *testing.T) {
	t.Parallel()

	busy := &Events[testutils.DamageEvent]{}
	for i := range 5 {
		busy.Send(testutils.DamageEvent{Target: uint32(i)}) //nolint:gosec // small test values
	}
	reader := NewEventReader[testutils.DamageEvent]()
	got, missed := reader.Read(busy)
	require.Len(t, got, 5)
	assert.Zero(t, missed)

	fresh := &Events[testutils.DamageEvent]{}
	got, missed = reader.Read(fresh)
	assert.Empty(t, got)
	assert.Zero(t, missed)

	fresh.Send(testutils.DamageEvent{Target: 9})
	got, _ = reader.Read(fresh)
	assert.Equal(t, []testutils.DamageEvent{{Target: 9}}, got)
}
