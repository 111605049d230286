// Package agents holds the fixed-size agent population.
package agents

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/slime/components"
)

// Agent is a flat copy of one agent's state, used for parallel phases.
type Agent struct {
	X, Y    float32
	Heading float32
}

// Store keeps agents as ECS entities. Entities are created once by Spawn and
// never removed, so slots are dense in [0, Len()).
type Store struct {
	world *ecs.World

	mapper *ecs.Map3[components.Position, components.Heading, components.Slot]
	filter *ecs.Filter3[components.Position, components.Heading, components.Slot]

	posMap     *ecs.Map1[components.Position]
	headingMap *ecs.Map1[components.Heading]

	entities []ecs.Entity
}

// NewStore creates an empty store with room for capacity agents.
func NewStore(capacity int) *Store {
	world := ecs.NewWorld()
	return &Store{
		world:      world,
		mapper:     ecs.NewMap3[components.Position, components.Heading, components.Slot](world),
		filter:     ecs.NewFilter3[components.Position, components.Heading, components.Slot](world),
		posMap:     ecs.NewMap1[components.Position](world),
		headingMap: ecs.NewMap1[components.Heading](world),
		entities:   make([]ecs.Entity, 0, capacity),
	}
}

// Spawn adds an agent at the next free slot and returns that slot.
func (s *Store) Spawn(x, y, heading float32) uint32 {
	slot := uint32(len(s.entities))
	pos := components.Position{X: x, Y: y}
	head := components.Heading{Angle: heading}
	idx := components.Slot{Index: slot}

	entity := s.mapper.NewEntity(&pos, &head, &idx)
	s.entities = append(s.entities, entity)
	return slot
}

// SpawnDisk spawns n agents inside a disk of the given radius around (cx, cy)
// with uniformly random headings. The radius is drawn uniformly, which biases
// density toward the centre.
func (s *Store) SpawnDisk(rng *rand.Rand, n int, cx, cy, radius float32) {
	for i := 0; i < n; i++ {
		r := radius * rng.Float32()
		phi := 2 * math.Pi * rng.Float64()
		x := cx + r*float32(math.Cos(phi))
		y := cy + r*float32(math.Sin(phi))
		heading := float32(2 * math.Pi * rng.Float64())
		s.Spawn(x, y, heading)
	}
}

// Len returns the population size.
func (s *Store) Len() int {
	return len(s.entities)
}

// Get returns the agent in slot.
func (s *Store) Get(slot uint32) Agent {
	e := s.entities[slot]
	pos := s.posMap.Get(e)
	head := s.headingMap.Get(e)
	return Agent{X: pos.X, Y: pos.Y, Heading: head.Angle}
}

// Snapshot copies every agent into dst indexed by slot, growing dst as needed.
func (s *Store) Snapshot(dst []Agent) []Agent {
	n := len(s.entities)
	if cap(dst) < n {
		dst = make([]Agent, n)
	}
	dst = dst[:n]

	query := s.filter.Query()
	for query.Next() {
		pos, head, slot := query.Get()
		dst[slot.Index] = Agent{X: pos.X, Y: pos.Y, Heading: head.Angle}
	}
	return dst
}

// Apply writes src back into the store. src must be indexed by slot and cover
// the whole population.
func (s *Store) Apply(src []Agent) {
	query := s.filter.Query()
	for query.Next() {
		pos, head, slot := query.Get()
		a := src[slot.Index]
		pos.X = a.X
		pos.Y = a.Y
		head.Angle = a.Heading
	}
}
