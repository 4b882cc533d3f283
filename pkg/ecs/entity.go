package ecs

import (
	"fmt"
	"math"
	"sync"

	"github.com/funnisimo/goblinwerks/pkg/assert"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// Entity is a generational handle. An index is reused only after the entity that held it has been
// deleted and swept, and every reuse bumps the generation, so a stale handle never resolves to the
// new occupant.
type Entity struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

func (e Entity) String() string {
	return fmt.Sprintf("entity(%dv%d)", e.Index, e.Generation)
}

// MaxEntityIndex is the largest index the allocator will hand out.
const MaxEntityIndex = math.MaxUint32 - 1

// entityAllocator hands out entity handles. Deleted indices stay reserved until maintain sweeps
// them out of every column, then join a FIFO free list.
type entityAllocator struct {
	generations []uint32      // Generation of the current (or last) occupant, indexed by entity index
	alive       bitmap.Bitmap // Bit set while the index holds a live entity
	free        []uint32      // Swept indices ready for reuse, oldest first
	killed      []uint32      // Deleted since the last sweep
	mu          sync.Mutex
}

func newEntityAllocator(capacity int) entityAllocator {
	return entityAllocator{
		generations: make([]uint32, 0, capacity),
		free:        make([]uint32, 0),
		killed:      make([]uint32, 0),
	}
}

func (ea *entityAllocator) create() Entity {
	ea.mu.Lock()
	defer ea.mu.Unlock()

	var index uint32
	if len(ea.free) > 0 {
		index = ea.free[0]
		ea.free = ea.free[1:]
		ea.generations[index]++
		if ea.generations[index] == 0 { // Skip zero on wrap so the zero Entity is never valid.
			ea.generations[index] = 1
		}
	} else {
		assert.That(len(ea.generations) <= MaxEntityIndex, "max number of entities exceeded")
		index = uint32(len(ea.generations)) //nolint:gosec // bounded above
		ea.generations = append(ea.generations, 1)
	}

	ea.alive.Set(index)
	return Entity{Index: index, Generation: ea.generations[index]}
}

// delete marks e dead. Its index is recycled by the next sweep.
func (ea *entityAllocator) delete(e Entity) error {
	ea.mu.Lock()
	defer ea.mu.Unlock()

	if err := ea.validateLocked(e, "delete"); err != nil {
		return err
	}
	ea.alive.Remove(e.Index)
	ea.killed = append(ea.killed, e.Index)
	return nil
}

func (ea *entityAllocator) isAlive(e Entity) bool {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.validateLocked(e, "") == nil
}

// validate returns nil if e is the live occupant of its index.
func (ea *entityAllocator) validate(e Entity, action string) error {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.validateLocked(e, action)
}

func (ea *entityAllocator) validateLocked(e Entity, action string) error {
	if int(e.Index) >= len(ea.generations) {
		return eris.Wrapf(ErrEntityNotFound, "cannot %s %s", action, e)
	}
	live := ea.generations[e.Index]
	alive := ea.alive.Contains(e.Index)
	if live != e.Generation {
		return &WrongGenerationError{Action: action, Entity: e, Live: live, Alive: alive}
	}
	if !alive {
		return eris.Wrapf(ErrEntityNotFound, "cannot %s %s", action, e)
	}
	return nil
}

// entityAt returns the live entity at index, if any.
func (ea *entityAllocator) entityAt(index uint32) (Entity, bool) {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	if !ea.alive.Contains(index) {
		return Entity{}, false
	}
	return Entity{Index: index, Generation: ea.generations[index]}, true
}

// sweep moves every index killed since the last sweep onto the free list and returns them.
func (ea *entityAllocator) sweep() []uint32 {
	ea.mu.Lock()
	defer ea.mu.Unlock()

	killed := ea.killed
	ea.free = append(ea.free, killed...)
	ea.killed = make([]uint32, 0, len(killed))
	return killed
}

// aliveMask returns a copy of the live-entity mask.
func (ea *entityAllocator) aliveMask() bitmap.Bitmap {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.alive.Clone(nil)
}

// highWater is one past the largest index ever handed out.
func (ea *entityAllocator) highWater() uint32 {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return uint32(len(ea.generations)) //nolint:gosec // bounded by MaxEntityIndex
}

func (ea *entityAllocator) count() int {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.alive.Count()
}
