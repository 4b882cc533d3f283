package ecs

import "math"

// Tick is a wrapping change-detection counter. Comparisons are only meaningful relative to a
// current world tick, and only within MaxChangeAge of it.
type Tick uint32

const (
	// TickCheckRate is how often, in ticks, stored ticks should be re-clamped so none of them
	// drifts out of the comparable window.
	TickCheckRate uint32 = 518_400_000

	// MaxChangeAge is the largest age a stored tick may have before it is clamped.
	MaxChangeAge uint32 = math.MaxUint32 - (2*TickCheckRate - 1)
)

// IsNewerThan reports whether t happened after lastSystemTick, as seen from worldTick. Both ages
// are clamped to MaxChangeAge so that ticks which have wrapped too far compare as "old".
func (t Tick) IsNewerThan(lastSystemTick, worldTick Tick) bool {
	sinceInsert := min(uint32(worldTick-t), MaxChangeAge)
	sinceSystem := min(uint32(worldTick-lastSystemTick), MaxChangeAge)
	return sinceSystem > sinceInsert
}

// CheckTick clamps t to worldTick-MaxChangeAge when it is older than that. Returns true if t
// was modified.
func (t *Tick) CheckTick(worldTick Tick) bool {
	if uint32(worldTick-*t) > MaxChangeAge {
		*t = worldTick - Tick(MaxChangeAge)
		return true
	}
	return false
}

// ComponentTicks records when a value was inserted and when it was last exclusively borrowed.
type ComponentTicks struct {
	Added   Tick
	Changed Tick
}

func NewComponentTicks(tick Tick) ComponentTicks {
	return ComponentTicks{Added: tick, Changed: tick}
}

func (c ComponentTicks) IsAdded(lastSystemTick, worldTick Tick) bool {
	return c.Added.IsNewerThan(lastSystemTick, worldTick)
}

func (c ComponentTicks) IsChanged(lastSystemTick, worldTick Tick) bool {
	return c.Changed.IsNewerThan(lastSystemTick, worldTick)
}

func (c *ComponentTicks) SetChanged(worldTick Tick) {
	c.Changed = worldTick
}

// CheckTicks clamps both ticks. See Tick.CheckTick.
func (c *ComponentTicks) CheckTicks(worldTick Tick) {
	c.Added.CheckTick(worldTick)
	c.Changed.CheckTick(worldTick)
}
