package ecs

import (
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/funnisimo/goblinwerks/pkg/assert"
	"github.com/funnisimo/goblinwerks/pkg/statsd"
	"github.com/funnisimo/goblinwerks/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// World owns the entities, component columns and resources of one simulation, and shares a
// Globals table with any other world created from it.
type World struct {
	id      string
	options WorldOptions
	logger  zerolog.Logger

	resources *Resources
	globals   *Globals
	entities  entityAllocator

	columnsMu sync.RWMutex
	columns   map[reflect.Type]abstractColumn

	eventsMu      sync.Mutex
	eventUpdaters map[ResourceKey]func(*World)

	tick           atomic.Uint32
	lastMaintained atomic.Uint32
	closed         atomic.Bool
}

// NewWorld merges opts over the GW_* environment and creates an empty world.
func NewWorld(opts WorldOptions) (*World, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load world config")
	}

	options := newDefaultWorldOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if options.ID == "" {
		options.ID = uuid.NewString()
	}
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid world options")
	}

	if options.StatsdAddress != "" {
		if err := statsd.Init(options.StatsdAddress, options.StatsdTags); err != nil {
			return nil, eris.Wrap(err, "failed to init statsd")
		}
	}

	logger := telemetry.GetGlobalLogger("ecs")
	if options.Logger != nil {
		logger = *options.Logger
	}

	globals := options.Globals
	if globals == nil {
		globals = NewGlobals()
	} else {
		globals.Acquire()
	}

	w := &World{
		id:            options.ID,
		options:       options,
		logger:        logger.With().Str("world", options.ID).Logger(),
		resources:     NewResources(),
		globals:       globals,
		entities:      newEntityAllocator(options.InitialEntityCapacity),
		columns:       make(map[reflect.Type]abstractColumn),
		eventUpdaters: make(map[ResourceKey]func(*World)),
	}
	w.tick.Store(1)

	w.logger.Debug().Str("execution", options.ExecutionMode.String()).Msg("world created")
	return w, nil
}

func (w *World) ID() string {
	return w.id
}

func (w *World) Logger() *zerolog.Logger {
	return &w.logger
}

// Tick is the current change tick.
func (w *World) Tick() Tick {
	return Tick(w.tick.Load())
}

// LastMaintained is the tick the world was at when Maintain last ran.
func (w *World) LastMaintained() Tick {
	return Tick(w.lastMaintained.Load())
}

func (w *World) nextTick() Tick {
	return Tick(w.tick.Add(1))
}

// Resources exposes the world's own resource table.
func (w *World) Resources() *Resources {
	return w.resources
}

func (w *World) Globals() *Globals {
	return w.globals
}

// Close drops the world's resources and its reference to the globals.
func (w *World) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.resources.Clear()
	w.globals.Release()
}

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

// Register adds a column for T. Registering twice is a no-op. Returns true if the column was
// created.
func Register[T any](w *World) bool {
	typ := reflect.TypeFor[T]()

	w.columnsMu.Lock()
	defer w.columnsMu.Unlock()
	if _, ok := w.columns[typ]; ok {
		return false
	}
	w.columns[typ] = newColumn[T]()
	w.logger.Debug().Str("component", typ.String()).Msg("component registered")
	return true
}

// IsRegistered reports whether T has a column.
func IsRegistered[T any](w *World) bool {
	_, ok := w.column(reflect.TypeFor[T]())
	return ok
}

func columnOf[T any](w *World) (*column[T], bool) {
	col, ok := w.column(reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}
	typed, ok := col.(*column[T])
	assert.That(ok, "column for %s has the wrong type", reflect.TypeFor[T]())
	return typed, true
}

func (w *World) column(typ reflect.Type) (abstractColumn, bool) {
	w.columnsMu.RLock()
	defer w.columnsMu.RUnlock()
	col, ok := w.columns[typ]
	return col, ok
}

// sortedColumns returns every column ordered by component name.
func (w *World) sortedColumns() []abstractColumn {
	w.columnsMu.RLock()
	defer w.columnsMu.RUnlock()
	cols := slices.Collect(maps.Values(w.columns))
	slices.SortFunc(cols, func(a, b abstractColumn) int { return compareKeys(a.key(), b.key()) })
	return cols
}

// ComponentNames lists the registered component types, sorted.
func (w *World) ComponentNames() []string {
	cols := w.sortedColumns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.key().String()
	}
	return names
}

// AddComponent sets a component whose type is only known at runtime. Panics if the type was
// never registered.
func (w *World) AddComponent(e Entity, component any) error {
	if err := w.entities.validate(e, "add component to"); err != nil {
		return err
	}
	col, ok := w.column(reflect.TypeOf(component))
	if !ok {
		panic(eris.Wrapf(ErrComponentNotRegistered, "cannot add %T to %s", component, e))
	}
	col.insertAbstract(e.Index, component, w.Tick())
	return nil
}

// -------------------------------------------------------------------------------------------------
// Entities
// -------------------------------------------------------------------------------------------------

// CreateEntity allocates an entity and returns a builder to attach its components.
func (w *World) CreateEntity() *EntityBuilder {
	return &EntityBuilder{world: w, entity: w.entities.create()}
}

// Spawn creates an entity with the given components. Every component type must be registered.
func (w *World) Spawn(components ...any) Entity {
	b := w.CreateEntity()
	for _, component := range components {
		b.With(component)
	}
	return b.Build()
}

// DeleteEntity kills e. Its components stay in their columns until the next Maintain, but e no
// longer resolves and joins through Entities skip it.
func (w *World) DeleteEntity(e Entity) error {
	return w.entities.delete(e)
}

func (w *World) IsAlive(e Entity) bool {
	return w.entities.isAlive(e)
}

// EntityCount is the number of live entities.
func (w *World) EntityCount() int {
	return w.entities.count()
}

// Entities returns the set of live entities as a join part.
func (w *World) Entities() EntitySet {
	return EntitySet{alloc: &w.entities}
}

// EntitySet joins over live entities and yields their handles.
type EntitySet struct {
	alloc *entityAllocator
}

func (s EntitySet) Count() int {
	return s.alloc.count()
}

func (s EntitySet) joinMask() (bitmap.Bitmap, joinKind) {
	return s.alloc.aliveMask(), joinConstrained
}

func (s EntitySet) fetch(index uint32) Entity {
	e, ok := s.alloc.entityAt(index)
	assert.That(ok, "index %d is not a live entity", index)
	return e
}

// -------------------------------------------------------------------------------------------------
// Maintain
// -------------------------------------------------------------------------------------------------

// Maintain closes the current frame: it advances the tick, sweeps deleted entities out of every
// column, clamps every stored tick, maintains the globals and swaps event buffers. Panics if any
// view of the world's columns or resources is still held.
func (w *World) Maintain() {
	start := time.Now()
	defer statsd.EmitTickStat(start, "maintain")

	w.mustBeUnborrowed()

	prev := w.tick.Add(1) - 1
	w.lastMaintained.Store(prev)
	now := w.Tick()

	killed := w.entities.sweep()
	cols := w.sortedColumns()
	for _, col := range cols {
		for _, index := range killed {
			col.drop(index)
		}
		col.checkTicks(now)
	}

	w.resources.CheckTicks(now)
	w.globals.Maintain()
	w.updateEvents()

	w.logger.Debug().
		Uint32("tick", uint32(now)).
		Int("swept", len(killed)).
		Int("entities", w.entities.count()).
		Dur("took", time.Since(start)).
		Msg("maintained")
}

func (w *World) mustBeUnborrowed() {
	for _, col := range w.sortedColumns() {
		if col.borrowed() {
			panic(BorrowError{Target: "component " + col.key().String(), Want: BorrowExclusive, Held: col.held()})
		}
	}
	if key, mode, ok := w.resources.borrowedKey(); ok {
		panic(BorrowError{Target: "resource " + key.String(), Want: BorrowExclusive, Held: mode})
	}
}

// MergeResources moves every resource of other that w lacks into w. other keeps its entities but
// loses its resources.
func (w *World) MergeResources(other *World) {
	w.resources.Merge(other.resources)
}

// -------------------------------------------------------------------------------------------------
// Observer
// -------------------------------------------------------------------------------------------------

func (w *World) observedWorld() *World {
	return w
}

// resourceTicks reports changes made since the last Maintain.
func (w *World) resourceTicks() (Tick, Tick) {
	return w.LastMaintained(), w.Tick()
}

func (w *World) globalTicks() (Tick, Tick) {
	return w.globals.LastMaintained(), w.globals.Tick()
}
