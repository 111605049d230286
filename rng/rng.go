// Package rng provides the stateless integer hash used to draw per-agent random
// numbers. Every value is a pure function of its seed, so any number of
// goroutines can draw concurrently without coordination.
package rng

import "math"

const (
	hashXor  uint32 = 2747636419
	hashMul  uint32 = 2654435769
	maxUint  float64 = 4294967295
	clockMul uint32 = 10000
)

// Hash mixes a 32-bit seed into a pseudo-random 32-bit value.
// All arithmetic relies on uint32 wraparound.
func Hash(s uint32) uint32 {
	s ^= hashXor
	s *= hashMul
	s ^= s >> 16
	s *= hashMul
	s ^= s >> 16
	s *= hashMul
	s ^= s >> 16
	return s
}

// Float maps a hashed value onto [0,1].
func Float(v uint32) float64 {
	return float64(v) / maxUint
}

// AgentSeed derives the seed for one agent at one step. Index and clock fix the
// sequence in time; the rounded start position perturbs it so agents sharing a
// cell at different times, or different cells at the same time, diverge.
func AgentSeed(index, clock uint32, x, y float32, width int) uint32 {
	s := index + clock*clockMul
	s = Hash(s)
	s += uint32(Round(x))
	s += uint32(Round(y)) * uint32(width)
	return Hash(s)
}

// Round rounds half up, matching how positions map to field cells.
func Round(v float32) int {
	return int(math.Floor(float64(v) + 0.5))
}

// Stream draws successive values from a single seed. It is a value type; copy
// it freely, each copy continues independently.
type Stream struct {
	state uint32
}

// NewStream starts a stream at seed.
func NewStream(seed uint32) Stream {
	return Stream{state: seed}
}

// ForAgent returns the stream for agent index at clock, starting from (x, y).
func ForAgent(index, clock uint32, x, y float32, width int) Stream {
	return Stream{state: AgentSeed(index, clock, x, y, width)}
}

// Next advances the stream and returns a value in [0,1].
func (s *Stream) Next() float64 {
	s.state = Hash(s.state)
	return Float(s.state)
}

// Next32 is Next narrowed to float32 for the hot paths.
func (s *Stream) Next32() float32 {
	return float32(s.Next())
}

// State returns the current internal state.
func (s Stream) State() uint32 {
	return s.state
}
