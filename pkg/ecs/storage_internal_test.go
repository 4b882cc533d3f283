package ecs

import (
	"testing"

	"github.com/funnisimo/goblinwerks/pkg/testutils"
	"github.com/stretchr/testify/assert"
)

// -------------------------------------------------------------------------------------------------
// Model-Based Fuzzing
//
// Applies random insert/remove/drop/get sequences to a MaskedStorage and to a map model, and
// checks that occupancy, values, ticks and the mask agree after every step.
// -------------------------------------------------------------------------------------------------

func TestMaskedStorage_ModelBasedFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	impl := NewMaskedStorage[int]()
	model := make(map[uint32]int)

	const (
		opsMax   = 1 << 15
		maxIndex = 2_000
	)

	for step := range opsMax {
		index := uint32(prng.IntN(maxIndex))
		tick := Tick(step + 1)

		switch testutils.RandWeightedOp(prng, storageOps) {
		case storageInsert:
			value := prng.Int()
			old, replaced := impl.Insert(index, value, tick)
			modelOld, modelHad := model[index]
			model[index] = value

			// Property: insert reports the previous occupant exactly like the model.
			assert.Equal(t, modelHad, replaced, "insert(%d) replaced mismatch", index)
			if modelHad {
				assert.Equal(t, modelOld, old, "insert(%d) old value mismatch", index)
			}

			// Property: contains(i) after insert(i).
			assert.True(t, impl.Contains(index), "insert(%d) then contains", index)
			ticks, _ := impl.Ticks(index)
			assert.Equal(t, NewComponentTicks(tick), ticks)

		case storageRemove:
			if len(model) > 0 && prng.Float64() < 0.8 {
				index = testutils.RandMapKey(prng, model)
			}
			got, ok := impl.Remove(index)
			want, had := model[index]
			delete(model, index)

			assert.Equal(t, had, ok, "remove(%d) existence mismatch", index)
			if had {
				assert.Equal(t, want, got, "remove(%d) value mismatch", index)
			}

			// Property: !contains(i) after remove(i).
			assert.False(t, impl.Contains(index), "remove(%d) then contains", index)

		case storageDrop:
			_, had := model[index]
			delete(model, index)
			assert.Equal(t, had, impl.Drop(index), "drop(%d) existence mismatch", index)
			assert.False(t, impl.Contains(index))

		case storageGet:
			if len(model) > 0 && prng.Float64() < 0.8 {
				index = testutils.RandMapKey(prng, model)
			}
			got, ok := impl.Get(index)
			want, had := model[index]
			assert.Equal(t, had, ok, "get(%d) existence mismatch", index)
			if had {
				assert.Equal(t, want, got, "get(%d) value mismatch", index)
			}

		default:
			panic("unreachable")
		}

		// Property: the mask holds exactly the occupied indices.
		assert.Equal(t, len(model), impl.Len())
	}

	mask := impl.Mask()
	assert.Equal(t, len(model), mask.Count())
	for index, value := range model {
		got, ok := impl.Get(index)
		assert.True(t, ok)
		assert.Equal(t, value, got)
		assert.True(t, mask.Contains(index))
	}
}

type storageOp uint8

const (
	storageInsert storageOp = 45
	storageRemove storageOp = 25
	storageDrop   storageOp = 10
	storageGet    storageOp = 20
)

var storageOps = []storageOp{storageInsert, storageRemove, storageDrop, storageGet}

func TestMaskedStorage_MaskIsACopy(t *testing.T) {
	t.Parallel()

	s := NewMaskedStorage[string]()
	s.Insert(3, "three", 1)

	mask := s.Mask()
	mask.Set(7)
	mask.Remove(3)

	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(7))
	assert.Equal(t, 1, s.Len())
}

func TestMaskedStorage_GrowsPastOnePage(t *testing.T) {
	t.Parallel()

	s := NewMaskedStorage[int]()
	s.Insert(storagePageSize*3+1, 42, 1)
	s.Insert(0, 7, 1)
	assert.Equal(t, storagePageSize*4, s.capacity())

	got, ok := s.Get(storagePageSize*3 + 1)
	assert.True(t, ok)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(0))
}

func TestMaskedStorage_SlotPanicsWhenEmpty(t *testing.T) {
	t.Parallel()

	s := NewMaskedStorage[int]()
	s.Insert(1, 1, 1)
	assert.Panics(t, func() { s.slot(2) })
}

func TestMaskedStorage_SlotSurvivesGrowth(t *testing.T) {
	t.Parallel()

	s := NewMaskedStorage[int]()
	s.Insert(0, 1, 1)
	value, ticks := s.slot(0)

	s.Insert(storagePageSize*8, 2, 1)

	*value = 99
	ticks.SetChanged(5)
	got, _ := s.Get(0)
	assert.Equal(t, 99, got)
	stored, _ := s.Ticks(0)
	assert.Equal(t, Tick(5), stored.Changed)
}
