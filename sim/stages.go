package sim

import (
	"math"

	"github.com/pthm-cable/slime/agents"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/rng"
)

// runDiffuse blurs and decays the committed field into scratch, row-parallel.
func (s *Simulation) runDiffuse(p Params) {
	s.dispatch.Dispatch(p.Height, func(y0, y1 int) {
		s.field.DiffuseRows(y0, y1, p.DiffuseRate, p.DecayRate)
	})
}

// runAgents updates every agent in three phases: snapshot, parallel compute of
// the new state, then a sequential apply that writes deposits in ascending slot
// order so the highest slot wins a shared cell.
func (s *Simulation) runAgents(p Params) {
	// Phase A: snapshot (single-threaded)
	s.snapshot = s.agents.Snapshot(s.snapshot)
	n := len(s.snapshot)
	if n == 0 {
		return
	}

	if cap(s.intents) < n {
		s.intents = make([]agents.Agent, n)
	}
	s.intents = s.intents[:n]

	// Phase B: compute (parallel, reads only the snapshot and committed field)
	s.dispatch.Dispatch(n, func(start, end int) {
		for i := start; i < end; i++ {
			s.intents[i] = s.stepAgent(uint32(i), s.snapshot[i], p)
		}
	})

	// Phase C: apply (single-threaded, preserves determinism)
	for _, a := range s.intents {
		s.field.Deposit(rng.Round(a.X), rng.Round(a.Y), p.DepositAmount)
	}
	s.agents.Apply(s.intents)
}

// stepAgent computes one agent's next state from its start-of-step state.
func (s *Simulation) stepAgent(slot uint32, a agents.Agent, p Params) agents.Agent {
	r := rng.ForAgent(slot, p.Clock, a.X, a.Y, p.Width)

	forward := s.sense(a, 0, p.SensorDistance)
	left := s.sense(a, p.SensorAngle, p.SensorDistance)
	right := s.sense(a, -p.SensorAngle, p.SensorDistance)

	heading := a.Heading
	switch {
	case forward > left && forward > right:
		// Keep going straight
	case forward < left && forward < right:
		heading += (r.Next32() - 0.5) * 2 * p.TurnSpeed
	case right > left:
		heading -= r.Next32() * p.TurnSpeed
	case left > right:
		heading += r.Next32() * p.TurnSpeed
	}
	heading += p.TurnJitter * (r.Next32() - 0.5)
	heading = normalizeAngle(heading)

	sin, cos := math.Sincos(float64(heading))
	x := a.X + float32(cos)*p.MoveSpeed
	y := a.Y + float32(sin)*p.MoveSpeed

	return agents.Agent{
		X:       field.Wrap(x, float32(p.Width)),
		Y:       field.Wrap(y, float32(p.Height)),
		Heading: heading,
	}
}

// sense returns the 3×3 committed sum around the probe at offset radians from
// the agent's heading.
func (s *Simulation) sense(a agents.Agent, offset, dist float32) float32 {
	sin, cos := math.Sincos(float64(a.Heading + offset))
	px := a.X + float32(cos)*dist
	py := a.Y + float32(sin)*dist
	return s.field.Sum3x3(rng.Round(px), rng.Round(py))
}

// normalizeAngle wraps an angle to [-π, π).
func normalizeAngle(a float32) float32 {
	const twoPi = 2 * math.Pi
	if a >= -math.Pi && a < math.Pi {
		return a
	}
	r := float32(math.Mod(float64(a)+math.Pi, twoPi))
	if r < 0 {
		r += twoPi
	}
	r -= math.Pi
	if r >= math.Pi {
		r -= twoPi
	}
	return r
}
