package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step. Stage names reuse these.
const (
	PhaseDiffuse = "diffuse"
	PhaseAgents  = "agents"
	PhaseSwap    = "swap"
)

// PerfCollector times simulation steps and their phases. The step and each
// tracked phase keep their own rolling Metric of nanoseconds, all emitted once
// per step, so phase shares are taken over the same window as the step mean.
// Not safe for concurrent use.
type PerfCollector struct {
	window int
	step   *Metric
	order  []string
	phases map[string]*Metric

	// Time spent in each phase during the open step
	open       map[string]time.Duration
	stepStart  time.Time
	phaseStart time.Time
	lastPhase  string

	lastFrame time.Time
	frame     time.Duration
}

// NewPerfCollector creates a collector averaging over window steps
// (window < 1 uses 60). phases are tracked up front in the given order.
func NewPerfCollector(window int, phases ...string) *PerfCollector {
	if window < 1 {
		window = 60
	}
	p := &PerfCollector{
		window: window,
		step:   NewMetric(window),
		phases: make(map[string]*Metric),
		open:   make(map[string]time.Duration),
	}
	p.Track(phases...)
	return p
}

// Track registers phases that are not tracked yet. A phase timed without
// being tracked is registered on first use.
func (p *PerfCollector) Track(phases ...string) {
	for _, name := range phases {
		if _, ok := p.phases[name]; ok {
			continue
		}
		p.phases[name] = NewMetric(p.window)
		p.order = append(p.order, name)
	}
}

// Phases returns the tracked phase names in registration order.
func (p *PerfCollector) Phases() []string {
	return append([]string(nil), p.order...)
}

// StartTick begins timing a step.
func (p *PerfCollector) StartTick() {
	p.stepStart = time.Now()
	clear(p.open)
	p.lastPhase = ""
}

// StartPhase closes the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	p.Track(phase)
	p.phaseStart = now
	p.lastPhase = phase
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.lastPhase != "" {
		p.open[p.lastPhase] += now.Sub(p.phaseStart)
	}
}

// EndTick closes the step. Tracked phases that did not run count as zero.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.lastPhase = ""

	p.step.Emit(float64(now.Sub(p.stepStart)))
	for _, name := range p.order {
		p.phases[name].Emit(float64(p.open[name]))
	}
}

// RecordFrame records the interval since the previous frame.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frame = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats is a summary of the rolling window.
type PerfStats struct {
	Steps           int // Steps resident in the window
	AvgTickDuration time.Duration
	TicksPerSecond  float64

	// Phases in registration order, with mean duration and share of the step
	Phases   []string
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats summarizes the current window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		Steps:         p.step.Count(),
		Phases:        p.Phases(),
		PhaseAvg:      make(map[string]time.Duration, len(p.order)),
		PhasePct:      make(map[string]float64, len(p.order)),
		FrameDuration: p.frame,
	}
	if p.frame > 0 {
		s.FPS = float64(time.Second) / float64(p.frame)
	}

	avg, ok := p.step.Read()
	if !ok {
		return s
	}
	s.AvgTickDuration = time.Duration(avg)
	if avg > 0 {
		s.TicksPerSecond = float64(time.Second) / avg
	}

	for _, name := range p.order {
		v, ok := p.phases[name].Read()
		if !ok {
			continue
		}
		s.PhaseAvg[name] = time.Duration(v)
		if avg > 0 {
			s.PhasePct[name] = v / avg * 100
		}
	}
	return s
}

// LogStats logs the summary at Info.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("steps", s.Steps),
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, name := range s.Phases {
		if pct, ok := s.PhasePct[name]; ok {
			attrs = append(attrs, slog.Float64(name+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd   uint64  `csv:"window_end"`
	Steps       int     `csv:"steps"`
	AvgTickUS   int64   `csv:"avg_tick_us"`
	TicksPerSec float64 `csv:"ticks_per_sec"`
	FPS         float64 `csv:"fps"`
	DiffusePct  float64 `csv:"diffuse_pct"`
	AgentsPct   float64 `csv:"agents_pct"`
	SwapPct     float64 `csv:"swap_pct"`
}

// ToCSV flattens the summary for perf.csv.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:   windowEnd,
		Steps:       s.Steps,
		AvgTickUS:   s.AvgTickDuration.Microseconds(),
		TicksPerSec: s.TicksPerSecond,
		FPS:         s.FPS,
		DiffusePct:  s.PhasePct[PhaseDiffuse],
		AgentsPct:   s.PhasePct[PhaseAgents],
		SwapPct:     s.PhasePct[PhaseSwap],
	}
}
