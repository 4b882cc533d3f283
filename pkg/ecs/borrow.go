package ecs

import (
	"fmt"
	"sync/atomic"
)

// BorrowMode is the kind of view held on a cell or column.
type BorrowMode uint8

const (
	BorrowShared BorrowMode = iota + 1
	BorrowExclusive
)

func (m BorrowMode) String() string {
	switch m {
	case BorrowShared:
		return "shared"
	case BorrowExclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// BorrowError is the panic value raised when a view is requested that would alias another live
// view of the same state.
type BorrowError struct {
	Target string
	Want   BorrowMode
	Held   BorrowMode
	Count  int32 // Number of shared views held, when Held is shared
}

func (e BorrowError) Error() string {
	if e.Held == BorrowShared && e.Count > 0 {
		return fmt.Sprintf("cannot borrow %s as %s: %d shared borrow(s) outstanding", e.Target, e.Want, e.Count)
	}
	return fmt.Sprintf("cannot borrow %s as %s: already borrowed as %s", e.Target, e.Want, e.Held)
}

const exclusiveBorrow = -1

// borrowFlag counts outstanding views. Positive values are shared views, exclusiveBorrow is a
// single exclusive view and zero means free. It is safe for concurrent use.
type borrowFlag struct {
	state atomic.Int32
}

func (b *borrowFlag) acquireShared(target string) {
	for {
		cur := b.state.Load()
		if cur == exclusiveBorrow {
			panic(BorrowError{Target: target, Want: BorrowShared, Held: BorrowExclusive})
		}
		if b.state.CompareAndSwap(cur, cur+1) {
			return
		}
	}
}

func (b *borrowFlag) acquireExclusive(target string) {
	if b.state.CompareAndSwap(0, exclusiveBorrow) {
		return
	}
	cur := b.state.Load()
	held := BorrowShared
	if cur == exclusiveBorrow {
		held = BorrowExclusive
	}
	panic(BorrowError{Target: target, Want: BorrowExclusive, Held: held, Count: max(cur, 0)})
}

func (b *borrowFlag) release(mode BorrowMode) {
	switch mode {
	case BorrowShared:
		b.state.Add(-1)
	case BorrowExclusive:
		b.state.Store(0)
	}
}

func (b *borrowFlag) borrowed() bool {
	return b.state.Load() != 0
}

// guard releases one acquired borrow at most once, no matter how many copies of the view that
// owns it are released.
type guard struct {
	flag     *borrowFlag
	mode     BorrowMode
	released atomic.Bool
}

func newGuard(flag *borrowFlag, mode BorrowMode, target string) *guard {
	switch mode {
	case BorrowShared:
		flag.acquireShared(target)
	case BorrowExclusive:
		flag.acquireExclusive(target)
	}
	return &guard{flag: flag, mode: mode}
}

func (g *guard) release() {
	if g == nil || !g.released.CompareAndSwap(false, true) {
		return
	}
	g.flag.release(g.mode)
}
