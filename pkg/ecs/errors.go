package ecs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrEntityNotFound is returned when an entity was never created or has already been deleted.
	ErrEntityNotFound = eris.New("entity does not exist")

	// ErrWrongGeneration is matched by *WrongGenerationError. The entity's index is (or was)
	// live, but under a different generation.
	ErrWrongGeneration = eris.New("entity generation mismatch")

	// ErrComponentNotRegistered is returned when a component storage is requested for a type
	// that was never registered with the world.
	ErrComponentNotRegistered = eris.New("component type not registered")

	// ErrComponentNotFound is returned when a live entity has no value in a storage.
	ErrComponentNotFound = eris.New("entity has no such component")

	// ErrResourceNotFound is returned when a resource or global slot is empty.
	ErrResourceNotFound = eris.New("resource does not exist")

	// ErrAccessConflict is matched by *ConflictError.
	ErrAccessConflict = eris.New("conflicting system access")

	ErrDuplicateSystem = eris.New("system already registered")
	ErrScheduleBuilt   = eris.New("schedule is already built")
)

// WrongGenerationError reports an operation on an entity whose index has been reused, or whose
// generation never matched the allocator.
type WrongGenerationError struct {
	Action string
	Entity Entity
	Live   uint32 // Generation currently stored for the index
	Alive  bool   // Whether the live generation is alive
}

func (e *WrongGenerationError) Error() string {
	return fmt.Sprintf("cannot %s %s: live generation is %d (alive=%t)", e.Action, e.Entity, e.Live, e.Alive)
}

func (e *WrongGenerationError) Is(target error) bool {
	return target == ErrWrongGeneration //nolint:errorlint // sentinel identity
}
