// Package sim runs the trail-field simulation: agents sense, steer, move and
// deposit onto a double-buffered field that diffuses and decays every step.
package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/pthm-cable/slime/agents"
	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/telemetry"
)

// ErrInvalidConfig is wrapped by every validation failure in New.
var ErrInvalidConfig = errors.New("sim: invalid config")

// Params is the immutable per-step parameter set. It is rebuilt every step
// from the static config and the step's clock.
type Params struct {
	AgentCount    int
	Width, Height int
	Clock         uint32

	MoveSpeed      float32
	TurnSpeed      float32
	TurnJitter     float32
	SensorAngle    float32
	SensorDistance float32
	DiffuseRate    float32
	DecayRate      float32
	DepositAmount  float32
}

// Stage is one named pass over the simulation state. Stages run in order and
// the field is swapped after the last one.
type Stage struct {
	Name string
	Run  func(p Params)
}

// Simulation owns the field, the agent population and the stage list.
// It is not safe for concurrent use; Step and the read accessors must be called
// from one goroutine at a time.
type Simulation struct {
	cfg config.SimulationConfig

	field    *field.Field
	agents   *agents.Store
	dispatch Dispatcher
	ownsPool *Pool

	stages []Stage
	perf   *telemetry.PerfCollector

	// Per-step buffers reused across steps
	snapshot []agents.Agent
	intents  []agents.Agent

	steps uint64
}

// New validates cfg, allocates a zeroed field and spawns the population in a
// disk around the field centre. A nil dispatcher gets a worker pool that Close
// releases; a caller-supplied dispatcher stays owned by the caller.
func New(cfg config.SimulationConfig, seed int64, d Dispatcher) (*Simulation, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	f, err := field.New(cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("allocating field: %w", err)
	}

	s := &Simulation{
		cfg:    cfg,
		field:  f,
		agents: agents.NewStore(cfg.AgentCount),
	}

	if d == nil {
		s.ownsPool = NewPool(0)
		d = s.ownsPool
	}
	s.dispatch = d

	rng := rand.New(rand.NewSource(seed))
	w, h := float32(cfg.Width), float32(cfg.Height)
	radius := float32(cfg.SpawnRadius) * min(w, h)
	s.agents.SpawnDisk(rng, cfg.AgentCount, w/2, h/2, radius)
	s.wrapAgents()

	s.stages = []Stage{
		{Name: telemetry.PhaseDiffuse, Run: s.runDiffuse},
		{Name: telemetry.PhaseAgents, Run: s.runAgents},
	}

	return s, nil
}

// Validate checks cfg without allocating anything.
func Validate(cfg config.SimulationConfig) error {
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return fmt.Errorf("%w: field size %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	case cfg.AgentCount < 0:
		return fmt.Errorf("%w: agent_count %d", ErrInvalidConfig, cfg.AgentCount)
	case cfg.DiffuseRate < 0 || cfg.DiffuseRate > 1:
		return fmt.Errorf("%w: diffuse_rate %v not in [0,1]", ErrInvalidConfig, cfg.DiffuseRate)
	case cfg.DecayRate < 0 || cfg.DecayRate > 1:
		return fmt.Errorf("%w: decay_rate %v not in [0,1]", ErrInvalidConfig, cfg.DecayRate)
	case !(cfg.FixedStepRate > 0):
		return fmt.Errorf("%w: fixed_step_rate %v", ErrInvalidConfig, cfg.FixedStepRate)
	case cfg.SpawnRadius < 0:
		return fmt.Errorf("%w: spawn_radius %v", ErrInvalidConfig, cfg.SpawnRadius)
	}
	return nil
}

// wrapAgents folds spawn positions that fell outside the field back onto it.
func (s *Simulation) wrapAgents() {
	s.snapshot = s.agents.Snapshot(s.snapshot)
	w, h := float32(s.cfg.Width), float32(s.cfg.Height)
	for i := range s.snapshot {
		s.snapshot[i].X = field.Wrap(s.snapshot[i].X, w)
		s.snapshot[i].Y = field.Wrap(s.snapshot[i].Y, h)
	}
	s.agents.Apply(s.snapshot)
}

// SetPerf attaches a collector that times each stage and the swap. nil
// detaches.
func (s *Simulation) SetPerf(p *telemetry.PerfCollector) {
	s.perf = p
	if p != nil {
		p.Track(s.StageNames()...)
		p.Track(telemetry.PhaseSwap)
	}
}

// Params builds the parameter set for the step at clock.
func (s *Simulation) Params(clock uint32) Params {
	c := s.cfg
	return Params{
		AgentCount:     s.agents.Len(),
		Width:          c.Width,
		Height:         c.Height,
		Clock:          clock,
		MoveSpeed:      float32(c.MoveSpeed),
		TurnSpeed:      float32(c.TurnSpeed),
		TurnJitter:     float32(c.TurnJitter),
		SensorAngle:    float32(c.SensorAngle),
		SensorDistance: float32(c.SensorDistance),
		DiffuseRate:    float32(c.DiffuseRate),
		DecayRate:      float32(c.DecayRate),
		DepositAmount:  float32(c.DepositAmount),
	}
}

// Step advances the simulation by one fixed step. clock feeds the per-agent
// random seeds, so replaying the same clocks reproduces the same run.
func (s *Simulation) Step(clock uint32) {
	p := s.Params(clock)

	if s.perf != nil {
		s.perf.StartTick()
	}

	for _, st := range s.stages {
		if s.perf != nil {
			s.perf.StartPhase(st.Name)
		}
		st.Run(p)
	}

	if s.perf != nil {
		s.perf.StartPhase(telemetry.PhaseSwap)
	}
	s.field.Swap()
	s.steps++

	if s.perf != nil {
		s.perf.EndTick()
	}
}

// Field returns a read-only view of the last committed step.
func (s *Simulation) Field() field.View {
	return s.field.Current()
}

// Agents returns a copy of the population indexed by slot.
func (s *Simulation) Agents() []agents.Agent {
	return s.agents.Snapshot(nil)
}

// StageNames returns the stage names in execution order.
func (s *Simulation) StageNames() []string {
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.Name
	}
	return names
}

// Steps returns the number of completed steps.
func (s *Simulation) Steps() uint64 {
	return s.steps
}

// Size returns the field dimensions.
func (s *Simulation) Size() (int, int) {
	return s.cfg.Width, s.cfg.Height
}

// Close releases the worker pool created by New, if any.
func (s *Simulation) Close() {
	if s.ownsPool != nil {
		s.ownsPool.Close()
	}
}
