package ecs

import (
	"fmt"

	"github.com/petermattis/goid"
)

// Affinity records which goroutine, if any, a non-shareable value is pinned to. Goroutine ids
// start at 1, so the zero value means shareable.
type Affinity struct {
	owner int64
}

func Shareable() Affinity {
	return Affinity{}
}

// PinnedToCurrent pins a value to the calling goroutine.
func PinnedToCurrent() Affinity {
	return Affinity{owner: goid.Get()}
}

func (a Affinity) IsShareable() bool {
	return a.owner == 0
}

func (a Affinity) Owner() int64 {
	return a.owner
}

// check panics with an AffinityError if a pinned value is touched from another goroutine.
func (a Affinity) check(target string) {
	if a.owner == 0 {
		return
	}
	if id := goid.Get(); id != a.owner {
		panic(AffinityError{Target: target, Owner: a.owner, Caller: id})
	}
}

// AffinityError is the panic value raised when a non-shareable value is accessed from a goroutine
// other than the one that inserted it.
type AffinityError struct {
	Target string
	Owner  int64
	Caller int64
}

func (e AffinityError) Error() string {
	return fmt.Sprintf("%s is pinned to goroutine %d but was accessed from goroutine %d", e.Target, e.Owner, e.Caller)
}
