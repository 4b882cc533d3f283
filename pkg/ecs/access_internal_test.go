package ecs

import (
	"testing"

	"github.com/funnisimo/goblinwerks/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_WriteWriteConflict(t *testing.T) {
	t.Parallel()

	stage := NewStage("update")
	require.NoError(t, stage.Add(NewNamedSystem("physics", nil, WritesResource[testutils.Clock]())))

	err := stage.Add(NewNamedSystem("ai", nil, WritesResource[testutils.Clock]()))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAccessConflict))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "ai", conflict.System)
	assert.Equal(t, "physics", conflict.Other)
	assert.Equal(t, KeyOf[testutils.Clock](), conflict.Key)
	assert.Equal(t, Write, conflict.Mode)
	assert.Equal(t, Write, conflict.OtherMode)
	assert.Contains(t, err.Error(), "ai")
	assert.Contains(t, err.Error(), "physics")
	assert.Contains(t, err.Error(), "testutils.Clock")

	// The rejected system was not admitted.
	assert.Equal(t, []string{"physics"}, stage.Systems())
}

func TestStage_ReadReadAccumulates(t *testing.T) {
	t.Parallel()

	stage := NewStage("render")
	require.NoError(t, stage.Add(NewNamedSystem("a", nil, ReadsComponent[testutils.Position]())))
	require.NoError(t, stage.Add(NewNamedSystem("b", nil, ReadsComponent[testutils.Position]())))
	require.NoError(t, stage.Add(NewNamedSystem("c", nil, ReadsComponent[testutils.Position]())))

	err := stage.Add(NewNamedSystem("d", nil, WritesComponent[testutils.Position]()))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a", conflict.Other)
	assert.Equal(t, Read, conflict.OtherMode)
}

func TestStage_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	stage := NewStage("update")
	require.NoError(t, stage.Add(NewNamedSystem("res", nil, WritesResource[testutils.Counter]())))
	require.NoError(t, stage.Add(NewNamedSystem("glob", nil, WritesGlobal[testutils.Counter]())))
	require.NoError(t, stage.Add(NewNamedSystem("comp", nil, WritesComponent[testutils.Counter]())))
}

func TestSystemMeta_WriteSubsumesRead(t *testing.T) {
	t.Parallel()

	meta := NewSystemMeta("self",
		ReadsResource[testutils.Counter](),
		WritesResource[testutils.Counter](),
		ReadsResource[testutils.Counter](),
	)
	assert.Equal(t, []AccessItem{WritesResource[testutils.Counter]()}, meta.Items())
	assert.True(t, meta.Declares(KindResource, KeyOf[testutils.Counter](), Read))
	assert.True(t, meta.Declares(KindResource, KeyOf[testutils.Counter](), Write))

	// A system never conflicts with itself.
	stage := NewStage("update")
	require.NoError(t, stage.Add(&System{meta: meta}))
}

func TestSystemMeta_DynamicKeys(t *testing.T) {
	t.Parallel()

	meta := NewSystemMeta("levels").
		Writes(KindResource, DynamicKeyOf[testutils.Counter]("floor1")).
		Reads(KindResource, DynamicKeyOf[testutils.Counter]("floor2"))

	stage := NewStage("update")
	require.NoError(t, stage.Add(&System{meta: meta}))
	require.NoError(t, stage.Add(NewNamedSystem("static", nil, WritesResource[testutils.Counter]())))

	err := stage.Add(&System{meta: NewSystemMeta("other").Writes(KindResource, DynamicKeyOf[testutils.Counter]("floor2"))})
	assert.ErrorIs(t, err, ErrAccessConflict)
}

// -------------------------------------------------------------------------------------------------
// Exhaustive pairwise check
//
// Enumerates every pair of single-item accesses over two kinds, two keys and both modes, and checks
// the stage verdict against the rule: conflict iff same kind, same key and at least one write.
// -------------------------------------------------------------------------------------------------

func TestStage_PairwiseExhaustive(t *testing.T) {
	t.Parallel()

	kinds := []AccessKind{KindResource, KindComponent}
	keys := []ResourceKey{KeyOf[testutils.Position](), KeyOf[testutils.Velocity]()}
	modes := []AccessMode{Read, Write}

	g := testutils.NewGen()
	cases := 0
	for !g.Done() {
		first := AccessItem{Kind: testutils.Pick(g, kinds), Key: testutils.Pick(g, keys), Mode: testutils.Pick(g, modes)}
		second := AccessItem{Kind: testutils.Pick(g, kinds), Key: testutils.Pick(g, keys), Mode: testutils.Pick(g, modes)}
		cases++

		stage := NewStage("pair")
		require.NoError(t, stage.Add(NewNamedSystem("first", nil, first)))
		err := stage.Add(NewNamedSystem("second", nil, second))

		wantConflict := first.Kind == second.Kind && first.Key == second.Key &&
			(first.Mode == Write || second.Mode == Write)
		assert.Equal(t, wantConflict, err != nil, "%s vs %s", first, second)
	}
	assert.Equal(t, 64, cases)
}
