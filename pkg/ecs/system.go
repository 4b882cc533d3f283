package ecs

import (
	"context"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/rs/zerolog"
)

// SystemFunc is the body of a system. It runs once per schedule run.
type SystemFunc func(ctx *SystemContext) error

// System pairs a function with its declared access and remembers when it last ran, which is the
// window its change detection looks back over.
type System struct {
	meta          *SystemMeta
	fn            SystemFunc
	lastRun       Tick
	lastGlobalRun Tick
}

// NewSystem names the system after its function.
func NewSystem(fn SystemFunc, access ...AccessItem) *System {
	name := filepath.Base(runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name())
	return NewNamedSystem(name, fn, access...)
}

func NewNamedSystem(name string, fn SystemFunc, access ...AccessItem) *System {
	return &System{meta: NewSystemMeta(name, access...), fn: fn}
}

func (s *System) Name() string {
	return s.meta.Name
}

func (s *System) Meta() *SystemMeta {
	return s.meta
}

func (s *System) LastRun() Tick {
	return s.lastRun
}

// run executes the system with fresh change ticks from the world and its globals. Every run gets
// its own tick so writes made by later systems stay newer than this run.
func (s *System) run(ctx context.Context, w *World, logger zerolog.Logger) error {
	sc := &SystemContext{
		ctx:        ctx,
		world:      w,
		system:     s,
		logger:     logger,
		last:       s.lastRun,
		this:       w.nextTick(),
		globalLast: s.lastGlobalRun,
		globalThis: w.globals.nextTick(),
	}
	err := s.fn(sc)
	s.lastRun = sc.this
	s.lastGlobalRun = sc.globalThis
	return err
}

// SystemContext is handed to a running system. It is an Observer, so every world accessor
// takes it in place of the world and reports changes relative to the system's previous run.
type SystemContext struct {
	ctx        context.Context //nolint:containedctx // scoped to one system run
	world      *World
	system     *System
	logger     zerolog.Logger
	last       Tick
	this       Tick
	globalLast Tick
	globalThis Tick
}

func (c *SystemContext) Context() context.Context {
	return c.ctx
}

func (c *SystemContext) World() *World {
	return c.world
}

func (c *SystemContext) Name() string {
	return c.system.Name()
}

func (c *SystemContext) Logger() *zerolog.Logger {
	return &c.logger
}

// LastRun is the tick of the system's previous run, zero on the first run.
func (c *SystemContext) LastRun() Tick {
	return c.last
}

// Tick is the change tick of the current run.
func (c *SystemContext) Tick() Tick {
	return c.this
}

func (c *SystemContext) observedWorld() *World {
	return c.world
}

func (c *SystemContext) resourceTicks() (Tick, Tick) {
	return c.last, c.this
}

func (c *SystemContext) globalTicks() (Tick, Tick) {
	return c.globalLast, c.globalThis
}
