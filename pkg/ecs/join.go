package ecs

import (
	"iter"

	"github.com/funnisimo/goblinwerks/pkg/assert"
	"github.com/funnisimo/goblinwerks/pkg/telemetry"
	"github.com/kelindar/bitmap"
)

var joinLogger = telemetry.GetGlobalLogger("join") //nolint:gochecknoglobals // package logger

type joinKind uint8

const (
	joinConstrained joinKind = iota // Narrows the join to its mask
	joinNegated                     // Removes its mask from the join
	joinOpen                        // Never narrows the join
)

// Joinable is anything that can take part in a join: component storages, the entity set, and the
// Not and Maybe adapters.
type Joinable interface {
	joinMask() (bitmap.Bitmap, joinKind)
}

// Fetcher is a Joinable that yields one item per joined index.
type Fetcher[T any] interface {
	Joinable
	fetch(index uint32) T
}

// -------------------------------------------------------------------------------------------------
// Adapters
// -------------------------------------------------------------------------------------------------

// AntiJoin excludes every index present in the wrapped joinable.
type AntiJoin struct {
	inner Joinable
}

// Not excludes the indices of j from a join.
func Not(j Joinable) AntiJoin {
	return AntiJoin{inner: j}
}

func (a AntiJoin) joinMask() (bitmap.Bitmap, joinKind) {
	mask, _ := a.inner.joinMask()
	return mask, joinNegated
}

func (a AntiJoin) fetch(uint32) struct{} {
	return struct{}{}
}

// Option is the item produced by a Maybe part.
type Option[T any] struct {
	Value T
	Ok    bool
}

// MaybeJoin yields Some(item) where the wrapped fetcher has a value and None elsewhere. It never
// narrows the join.
type MaybeJoin[T any] struct {
	inner Fetcher[T]
}

func Maybe[T any](f Fetcher[T]) MaybeJoin[T] {
	return MaybeJoin[T]{inner: f}
}

func (m MaybeJoin[T]) joinMask() (bitmap.Bitmap, joinKind) {
	mask, _ := m.inner.joinMask()
	return mask, joinOpen
}

func (m MaybeJoin[T]) fetch(index uint32) Option[T] {
	mask, _ := m.inner.joinMask()
	if !mask.Contains(index) {
		return Option[T]{}
	}
	return Option[T]{Value: m.inner.fetch(index), Ok: true}
}

// -------------------------------------------------------------------------------------------------
// JoinIter
// -------------------------------------------------------------------------------------------------

// JoinIter is the set of indices produced by combining joinables: the AND of every constrained
// mask, minus every negated mask.
type JoinIter struct {
	mask          bitmap.Bitmap
	unconstrained bool
}

// Join combines parts into a JoinIter. If no part constrains the join, the universe is every
// index below the widest mask involved, and a warning is logged since such joins usually
// iterate far more than intended. Add Entities to bound them to live entities.
func Join(parts ...Joinable) *JoinIter {
	var (
		combined    bitmap.Bitmap
		constrained bool
		universe    uint32
		negated     []bitmap.Bitmap
	)

	for _, part := range parts {
		mask, kind := part.joinMask()
		universe = max(universe, joinUniverse(len(mask)))
		switch kind {
		case joinConstrained:
			if !constrained {
				combined = mask.Clone(nil)
				constrained = true
			} else {
				combined.And(mask)
			}
		case joinNegated:
			negated = append(negated, mask)
		case joinOpen:
		}
	}

	if !constrained {
		joinLogger.Warn().Int("parts", len(parts)).Uint32("universe", universe).
			Msg("join has no constraining part, iterating every index")
		for index := range universe {
			combined.Set(index)
		}
	}
	for _, mask := range negated {
		combined.AndNot(mask)
	}

	return &JoinIter{mask: combined, unconstrained: !constrained}
}

// joinUniverse is the number of indices addressed by a mask of the given word count, capped at
// the entity index space.
func joinUniverse(words int) uint32 {
	return uint32(min(uint64(words)*64, uint64(MaxEntityIndex)+1)) //nolint:gosec // capped above
}

// Indices iterates the joined indices in ascending order.
func (j *JoinIter) Indices() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		stopped := false
		j.mask.Range(func(index uint32) {
			if stopped {
				return
			}
			stopped = !yield(index)
		})
	}
}

func (j *JoinIter) Contains(index uint32) bool {
	return j.mask.Contains(index)
}

func (j *JoinIter) Count() int {
	return j.mask.Count()
}

func (j *JoinIter) Unconstrained() bool {
	return j.unconstrained
}

// Fetch returns f's item at index, which must be part of j.
func Fetch[T any](j *JoinIter, f Fetcher[T], index uint32) T {
	assert.That(j.Contains(index), "fetch of index %d outside the join", index)
	return f.fetch(index)
}

// -------------------------------------------------------------------------------------------------
// Typed joins
// -------------------------------------------------------------------------------------------------

type Row2[A, B any] struct {
	A A
	B B
}

type Row3[A, B, C any] struct {
	A A
	B B
	C C
}

type Row4[A, B, C, D any] struct {
	A A
	B B
	C C
	D D
}

// Join1 iterates a single fetcher, narrowed by filters (typically Not parts or Entities).
func Join1[A any](a Fetcher[A], filters ...Joinable) iter.Seq2[uint32, A] {
	return func(yield func(uint32, A) bool) {
		for index := range Join(withParts(filters, a)...).Indices() {
			if !yield(index, a.fetch(index)) {
				return
			}
		}
	}
}

func Join2[A, B any](a Fetcher[A], b Fetcher[B], filters ...Joinable) iter.Seq2[uint32, Row2[A, B]] {
	return func(yield func(uint32, Row2[A, B]) bool) {
		for index := range Join(withParts(filters, a, b)...).Indices() {
			if !yield(index, Row2[A, B]{A: a.fetch(index), B: b.fetch(index)}) {
				return
			}
		}
	}
}

func Join3[A, B, C any](
	a Fetcher[A], b Fetcher[B], c Fetcher[C], filters ...Joinable,
) iter.Seq2[uint32, Row3[A, B, C]] {
	return func(yield func(uint32, Row3[A, B, C]) bool) {
		for index := range Join(withParts(filters, a, b, c)...).Indices() {
			row := Row3[A, B, C]{A: a.fetch(index), B: b.fetch(index), C: c.fetch(index)}
			if !yield(index, row) {
				return
			}
		}
	}
}

func Join4[A, B, C, D any](
	a Fetcher[A], b Fetcher[B], c Fetcher[C], d Fetcher[D], filters ...Joinable,
) iter.Seq2[uint32, Row4[A, B, C, D]] {
	return func(yield func(uint32, Row4[A, B, C, D]) bool) {
		for index := range Join(withParts(filters, a, b, c, d)...).Indices() {
			row := Row4[A, B, C, D]{A: a.fetch(index), B: b.fetch(index), C: c.fetch(index), D: d.fetch(index)}
			if !yield(index, row) {
				return
			}
		}
	}
}

func withParts(filters []Joinable, parts ...Joinable) []Joinable {
	return append(parts, filters...)
}
