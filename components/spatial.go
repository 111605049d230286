// Package components defines the ECS components that make up an agent.
package components

// Position is an agent's location in field coordinates.
type Position struct {
	X, Y float32
}

// Heading is an agent's direction of travel in radians.
type Heading struct {
	Angle float32
}

// Slot is an agent's stable index in [0, population). It feeds the RNG seed and
// orders deposits, so it never changes after spawn.
type Slot struct {
	Index uint32
}
