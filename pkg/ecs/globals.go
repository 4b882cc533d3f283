package ecs

import (
	"sync/atomic"

	"github.com/funnisimo/goblinwerks/pkg/telemetry"
	"github.com/rs/zerolog"
)

// KeepDeletedTime is how many maintains a removed global would stay observable as "recently
// removed". Nothing reads removal history yet, so the sweep in Maintain has nothing to do.
const KeepDeletedTime = 8

// Globals is a resource table shared by every World created with it. It carries its own tick,
// independent of any world, and lives until its last reference is released.
type Globals struct {
	*Resources

	refs           atomic.Int32
	tick           atomic.Uint32
	lastMaintained atomic.Uint32
	logger         zerolog.Logger
}

// NewGlobals returns an empty table holding one reference for the caller.
func NewGlobals() *Globals {
	g := &Globals{
		Resources: NewResources(),
		logger:    telemetry.GetGlobalLogger("globals"),
	}
	g.refs.Store(1)
	g.tick.Store(1)
	return g
}

// Acquire adds a reference and returns g.
func (g *Globals) Acquire() *Globals {
	g.refs.Add(1)
	return g
}

// Release drops a reference. The last release clears the table and returns true.
func (g *Globals) Release() bool {
	remaining := g.refs.Add(-1)
	if remaining > 0 {
		return false
	}
	if remaining < 0 {
		panic("globals released more times than acquired")
	}
	g.Clear()
	return true
}

func (g *Globals) Refs() int {
	return int(g.refs.Load())
}

func (g *Globals) Tick() Tick {
	return Tick(g.tick.Load())
}

func (g *Globals) LastMaintained() Tick {
	return Tick(g.lastMaintained.Load())
}

// nextTick advances the change tick and returns the new value. Each system run gets its own.
func (g *Globals) nextTick() Tick {
	return Tick(g.tick.Add(1))
}

// Maintain advances the tick, clamps stored ticks and runs the removal-retention sweep.
func (g *Globals) Maintain() {
	prev := g.tick.Add(1) - 1
	g.lastMaintained.Store(prev)
	g.CheckTicks(g.Tick())
	g.sweepRemoved()
}

func (g *Globals) sweepRemoved() {
	g.logger.Trace().Uint32("tick", uint32(g.Tick())).Int("keep", KeepDeletedTime).Msg("removal sweep skipped")
}
