package testutils

import "github.com/funnisimo/goblinwerks/pkg/assert"

// Gen enumerates every combination of bounded choices made inside a `for !g.Done()` loop.
//
// Each pass records the sequence of values it handed out together with the bound requested at
// each position. Done advances to the next sequence by bumping the rightmost value still below
// its bound and resetting everything to its right.
//
// See: <https://matklad.github.io/2021/11/07/generate-all-the-things.html>
type Gen struct {
	started bool
	slots   [32]genSlot
	pos     int
	depth   int
}

type genSlot struct {
	value, bound uint32
}

func NewGen() *Gen {
	return &Gen{}
}

// Done reports whether every combination has been produced.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.depth - 1; i >= 0; i-- {
		if g.slots[i].value < g.slots[i].bound {
			g.slots[i].value++
			g.depth = i + 1
			g.pos = 0
			return false
		}
	}
	return true
}

func (g *Gen) next(bound uint32) uint32 {
	assert.That(g.pos < len(g.slots), "exhaustigen: exceeded maximum depth of %d", len(g.slots))
	if g.pos == g.depth {
		g.slots[g.pos] = genSlot{}
		g.depth++
	}
	g.slots[g.pos].bound = bound
	g.pos++
	return g.slots[g.pos-1].value
}

// Intn returns an int in [0, bound].
func (g *Gen) Intn(bound int) int {
	return int(g.next(uint32(bound))) //nolint:gosec // bounds are small in tests
}

// Bool returns false then true.
func (g *Gen) Bool() bool {
	return g.next(1) == 1
}

// Pick returns one element of a non-empty slice.
func Pick[T any](g *Gen, items []T) T {
	return items[g.Intn(len(items)-1)]
}
