package ecs

import (
	"testing"

	"github.com/funnisimo/goblinwerks/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityAllocator_StaleGeneration(t *testing.T) {
	t.Parallel()

	ea := newEntityAllocator(4)
	e := ea.create()
	require.NoError(t, ea.delete(e))

	// Deleted but not swept: the index is not reused yet.
	err := ea.validate(e, "read")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEntityNotFound))
	other := ea.create()
	assert.NotEqual(t, e.Index, other.Index)

	ea.sweep()
	reused := ea.create()
	require.Equal(t, e.Index, reused.Index)
	assert.Equal(t, e.Generation+1, reused.Generation)

	// Property: the stale handle never resolves to the new occupant.
	assert.False(t, ea.isAlive(e))
	err = ea.validate(e, "read")
	assert.ErrorIs(t, err, ErrWrongGeneration)

	var wrongGen *WrongGenerationError
	require.ErrorAs(t, err, &wrongGen)
	assert.Equal(t, reused.Generation, wrongGen.Live)
	assert.True(t, wrongGen.Alive)

	assert.ErrorIs(t, ea.delete(e), ErrWrongGeneration)
	assert.True(t, ea.isAlive(reused))
}

func TestEntityAllocator_UnknownEntity(t *testing.T) {
	t.Parallel()

	ea := newEntityAllocator(0)
	err := ea.validate(Entity{Index: 10, Generation: 1}, "read")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEntityAllocator_FreeListIsFIFO(t *testing.T) {
	t.Parallel()

	ea := newEntityAllocator(0)
	a, b, c := ea.create(), ea.create(), ea.create()
	require.NoError(t, ea.delete(b))
	require.NoError(t, ea.delete(a))
	require.NoError(t, ea.delete(c))
	assert.Equal(t, []uint32{b.Index, a.Index, c.Index}, ea.sweep())

	assert.Equal(t, b.Index, ea.create().Index)
	assert.Equal(t, a.Index, ea.create().Index)
	assert.Equal(t, c.Index, ea.create().Index)
	assert.Equal(t, uint32(3), ea.highWater())
}

// -------------------------------------------------------------------------------------------------
// Model-Based Fuzzing
//
// Random create/delete/sweep sequences. The model tracks the live handle per index and every
// handle ever issued, and checks that exactly the live handles validate.
// -------------------------------------------------------------------------------------------------

func TestEntityAllocator_ModelBasedFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	ea := newEntityAllocator(0)
	live := make(map[Entity]struct{})
	issued := make([]Entity, 0)

	const opsMax = 1 << 14

	for range opsMax {
		switch testutils.RandWeightedOp(prng, entityOps) {
		case entityCreate:
			e := ea.create()
			_, dup := live[e]
			assert.False(t, dup, "create returned a live handle %s", e)
			live[e] = struct{}{}
			issued = append(issued, e)

		case entityDelete:
			if len(live) == 0 {
				continue
			}
			e := testutils.RandMapKey(prng, live)
			require.NoError(t, ea.delete(e))
			delete(live, e)

		case entitySweep:
			ea.sweep()

		default:
			panic("unreachable")
		}

		assert.Equal(t, len(live), ea.count())
	}

	// Property: a handle validates iff it is live.
	for _, e := range issued {
		_, isLive := live[e]
		assert.Equal(t, isLive, ea.isAlive(e), "%s liveness mismatch", e)
	}
}

type entityOp uint8

const (
	entityCreate entityOp = 50
	entityDelete entityOp = 35
	entitySweep  entityOp = 15
)

var entityOps = []entityOp{entityCreate, entityDelete, entitySweep}
