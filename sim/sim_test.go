package sim

import (
	"errors"
	"math"
	"slices"
	"testing"

	"go.uber.org/goleak"

	"github.com/pthm-cable/slime/agents"
	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/rng"
	"github.com/pthm-cable/slime/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(w, h, n int) config.SimulationConfig {
	return config.SimulationConfig{
		Width:          w,
		Height:         h,
		AgentCount:     n,
		MoveSpeed:      1,
		TurnSpeed:      0.4,
		TurnJitter:     0.1,
		SensorAngle:    0.5,
		SensorDistance: 9,
		DiffuseRate:    0.3,
		DecayRate:      0.05,
		DepositAmount:  1,
		FixedStepRate:  60,
		SpawnRadius:    0.25,
	}
}

func newTestSim(t *testing.T, cfg config.SimulationConfig, seed int64, d Dispatcher) *Simulation {
	t.Helper()
	s, err := New(cfg, seed, d)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.SimulationConfig)
	}{
		{"zero width", func(c *config.SimulationConfig) { c.Width = 0 }},
		{"negative height", func(c *config.SimulationConfig) { c.Height = -1 }},
		{"negative agents", func(c *config.SimulationConfig) { c.AgentCount = -5 }},
		{"diffuse above one", func(c *config.SimulationConfig) { c.DiffuseRate = 1.5 }},
		{"negative decay", func(c *config.SimulationConfig) { c.DecayRate = -0.1 }},
		{"zero step rate", func(c *config.SimulationConfig) { c.FixedStepRate = 0 }},
		{"nan step rate", func(c *config.SimulationConfig) { c.FixedStepRate = math.NaN() }},
		{"negative spawn radius", func(c *config.SimulationConfig) { c.SpawnRadius = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(32, 32, 10)
			tt.mutate(&cfg)
			s, err := New(cfg, 1, Serial{})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if s != nil {
				t.Error("expected nil simulation on error")
			}
		})
	}
}

func TestNewAllowsZeroAgents(t *testing.T) {
	s := newTestSim(t, testConfig(16, 8, 0), 1, Serial{})
	if n := len(s.Agents()); n != 0 {
		t.Fatalf("agents = %d, want 0", n)
	}
	s.Step(0)
	if s.Steps() != 1 {
		t.Errorf("Steps() = %d, want 1", s.Steps())
	}
}

func TestStageOrder(t *testing.T) {
	s := newTestSim(t, testConfig(8, 8, 1), 1, Serial{})
	got := s.StageNames()
	want := []string{telemetry.PhaseDiffuse, telemetry.PhaseAgents}
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSpawnInsideField(t *testing.T) {
	cfg := testConfig(40, 30, 500)
	cfg.SpawnRadius = 2 // disk larger than the field
	s := newTestSim(t, cfg, 9, Serial{})

	for i, a := range s.Agents() {
		if a.X < 0 || a.X >= 40 || a.Y < 0 || a.Y >= 30 {
			t.Fatalf("agent %d spawned outside field: %+v", i, a)
		}
	}
}

func TestSingleAgentOnZeroFieldOnlyJitters(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		cfg := testConfig(100, 100, 1)
		s := newTestSim(t, cfg, seed, Serial{})

		before := s.Agents()[0].Heading
		s.Step(uint32(seed))
		after := s.Agents()[0].Heading

		d := math.Remainder(float64(after-before), 2*math.Pi)
		if limit := math.Abs(cfg.TurnJitter)*0.5 + 1e-5; math.Abs(d) > limit {
			t.Errorf("seed %d: heading changed by %v, limit %v", seed, d, limit)
		}
	}
}

func TestTurnPriorities(t *testing.T) {
	s := newTestSim(t, testConfig(64, 64, 0), 1, Serial{})
	p := s.Params(7)
	p.TurnJitter = 0
	p.TurnSpeed = 0.4
	p.SensorAngle = 0.6
	p.SensorDistance = 10

	start := agents.Agent{X: 32, Y: 32, Heading: 0.3}
	probe := func(offset float32) (int, int) {
		sin, cos := math.Sincos(float64(start.Heading + offset))
		return rng.Round(start.X + float32(cos)*p.SensorDistance), rng.Round(start.Y + float32(sin)*p.SensorDistance)
	}

	const (
		none = iota
		either
		right
		left
	)
	tests := []struct {
		name                 string
		forward, left, right float32
		want                 int
	}{
		{"forward strictly greatest", 3, 1, 2, none},
		{"forward strictly smallest", 1, 3, 2, either},
		{"right above left", 2, 1, 3, right},
		{"left above right", 2, 3, 1, left},
		{"forward ties left, right lower", 2, 2, 1, left},
		{"forward ties right, left lower", 2, 1, 2, right},
		{"all equal", 2, 2, 2, none},
		{"all zero", 0, 0, 0, none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.field.Fill(0)
			for _, c := range []struct {
				offset float32
				v      float32
			}{{0, tt.forward}, {p.SensorAngle, tt.left}, {-p.SensorAngle, tt.right}} {
				x, y := probe(c.offset)
				s.field.Set(x, y, c.v)
			}

			got := s.stepAgent(0, start, p)
			d := math.Remainder(float64(got.Heading-start.Heading), 2*math.Pi)
			limit := float64(p.TurnSpeed) + 1e-6

			switch tt.want {
			case none:
				if math.Abs(d) > 1e-6 {
					t.Errorf("heading changed by %v, want no turn", d)
				}
			case either:
				if math.Abs(d) > limit {
					t.Errorf("heading changed by %v, limit %v", d, limit)
				}
			case right:
				if d >= 0 || d < -limit {
					t.Errorf("heading changed by %v, want in [-%v, 0)", d, limit)
				}
			case left:
				if d <= 0 || d > limit {
					t.Errorf("heading changed by %v, want in (0, %v]", d, limit)
				}
			}
		})
	}
}

func TestDepositLandsAtRoundedPosition(t *testing.T) {
	cfg := testConfig(20, 20, 1)
	cfg.DepositAmount = 2.5
	s := newTestSim(t, cfg, 3, Serial{})

	s.Step(0)
	a := s.Agents()[0]
	got := s.Field().At(rng.Round(a.X), rng.Round(a.Y))
	if got != 2.5 {
		t.Errorf("field at agent = %v, want 2.5", got)
	}
}

func TestAgentsStayInBounds(t *testing.T) {
	cfg := testConfig(37, 23, 300)
	cfg.MoveSpeed = 7.3
	cfg.TurnSpeed = 2
	s := newTestSim(t, cfg, 5, Serial{})

	for clock := uint32(0); clock < 60; clock++ {
		s.Step(clock)
		for i, a := range s.Agents() {
			if a.X < 0 || a.X >= 37 || a.Y < 0 || a.Y >= 23 {
				t.Fatalf("step %d agent %d out of bounds: %+v", clock, i, a)
			}
			if a.Heading < -math.Pi || a.Heading >= math.Pi {
				t.Fatalf("step %d agent %d heading not normalized: %v", clock, i, a.Heading)
			}
		}
	}
}

func TestZeroAgentFieldDecays(t *testing.T) {
	cfg := testConfig(24, 16, 0)
	s := newTestSim(t, cfg, 1, Serial{})
	s.field.Fill(5)
	s.field.Set(3, 4, 100)

	prev := s.Field().Stats().Total
	for clock := uint32(0); clock < 400; clock++ {
		s.Step(clock)
		stats := s.Field().Stats()
		if stats.Total > prev {
			t.Fatalf("step %d: total grew from %v to %v", clock, prev, stats.Total)
		}
		prev = stats.Total
	}

	for _, v := range s.Field().Snapshot() {
		if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("invalid cell value %v", v)
		}
	}
	if prev > 1e-3 {
		t.Errorf("field did not converge toward zero, total %v", prev)
	}
}

func TestDeterministicReplay(t *testing.T) {
	cfg := testConfig(64, 48, 200)
	a := newTestSim(t, cfg, 42, Serial{})
	b := newTestSim(t, cfg, 42, Serial{})

	for clock := uint32(0); clock < 30; clock++ {
		a.Step(clock)
		b.Step(clock)
	}

	assertSameState(t, a, b)
}

func TestPoolMatchesSerial(t *testing.T) {
	cfg := testConfig(96, 96, 700)

	pool := NewPool(4)
	defer pool.Close()

	serial := newTestSim(t, cfg, 11, Serial{})
	parallel := newTestSim(t, cfg, 11, pool)

	for clock := uint32(0); clock < 25; clock++ {
		serial.Step(clock)
		parallel.Step(clock)
	}

	assertSameState(t, serial, parallel)
}

func TestDefaultPoolClosedBySimulation(t *testing.T) {
	s, err := New(testConfig(96, 80, 200), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Step(0)
	s.Close()
	// goleak in TestMain catches leftover workers
}

func TestPerfCollectorTimesStages(t *testing.T) {
	s := newTestSim(t, testConfig(32, 32, 50), 1, Serial{})
	perf := telemetry.NewPerfCollector(10)
	s.SetPerf(perf)

	for clock := uint32(0); clock < 5; clock++ {
		s.Step(clock)
	}

	stats := perf.Stats()
	want := append(s.StageNames(), telemetry.PhaseSwap)
	if !slices.Equal(stats.Phases, want) {
		t.Errorf("phases = %v, want stage order %v", stats.Phases, want)
	}
	for _, phase := range want {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("missing phase %q in %v", phase, stats.PhaseAvg)
		}
	}
	if stats.Steps != 5 {
		t.Errorf("steps = %d, want 5", stats.Steps)
	}
}

func assertSameState(t *testing.T, a, b *Simulation) {
	t.Helper()

	fa, fb := a.Field().Snapshot(), b.Field().Snapshot()
	for i := range fa {
		if math.Float32bits(fa[i]) != math.Float32bits(fb[i]) {
			t.Fatalf("field cell %d differs: %v vs %v", i, fa[i], fb[i])
		}
	}

	aa, ab := a.Agents(), b.Agents()
	for i := range aa {
		if aa[i] != ab[i] {
			t.Fatalf("agent %d differs: %+v vs %+v", i, aa[i], ab[i])
		}
	}
}
