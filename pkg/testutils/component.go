package testutils

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

type Position struct {
	X, Y int
}

type Velocity struct {
	DX, DY int
}

type Health struct {
	Current, Max int
}

// Tag carries no data. Joins over it only constrain membership.
type Tag struct{}

// -------------------------------------------------------------------------------------------------
// Resources
// -------------------------------------------------------------------------------------------------

type Counter struct {
	Value int
}

type Clock struct {
	Turn    uint64
	Elapsed float64
}

// MessageLog is a resource shaped like the UI's scrollback.
type MessageLog struct {
	Lines []string
}

// -------------------------------------------------------------------------------------------------
// Events
// -------------------------------------------------------------------------------------------------

type DamageEvent struct {
	Target uint32
	Amount int
}
