// Package game wires a Simulation to a Scheduler, metrics and telemetry
// output. Viewers plug in through Options.OnRender.
package game

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/loop"
	"github.com/pthm-cable/slime/sim"
	"github.com/pthm-cable/slime/telemetry"
)

// bookmarkHistory is the number of stats windows bookmarks compare against.
const bookmarkHistory = 10

// Options configures a Game.
type Options struct {
	Seed           int64
	LogStats       bool
	StatsWindowSec float64 // 0 = use config
	OutputDir      string  // empty = no CSV output
	SnapshotDir    string  // empty = no snapshots on bookmarks
	MaxTicks       uint64  // 0 = unlimited

	// Dispatcher runs the parallel stage work. nil = a worker pool owned by
	// the simulation.
	Dispatcher sim.Dispatcher

	// OnRender is called after every frame that simulated at least one step,
	// with the tick count so far and the committed field.
	OnRender func(tick uint64, view field.View) error
}

// Game holds the complete run state.
type Game struct {
	cfg *config.Config
	sim *sim.Simulation

	sched *loop.Scheduler

	metrics   *telemetry.Metrics
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	output    *telemetry.OutputManager
	frames    *telemetry.LapTimer
	bookmarks *telemetry.BookmarkDetector

	rngSeed     int64
	snapshotDir string
	logStats    bool
	maxTicks    uint64
	onRender    func(uint64, field.View) error

	// Touched only from scheduler callbacks
	tick      uint64
	lastClock time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

// New builds a stopped game driven by host. Call Scheduler().Start to run it.
func New(cfg *config.Config, host loop.Host, opts Options) (*Game, error) {
	s, err := sim.New(cfg.Sim(), opts.Seed, opts.Dispatcher)
	if err != nil {
		return nil, err
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}

	g := &Game{
		cfg:       cfg,
		sim:       s,
		metrics:   telemetry.NewMetrics(cfg.Telemetry.MetricWindow),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(statsWindow, cfg.Derived.StepSec),
		frames:    telemetry.NewLapTimer(),
		bookmarks: telemetry.NewBookmarkDetector(bookmarkHistory),

		rngSeed:     opts.Seed,
		snapshotDir: opts.SnapshotDir,
		logStats:    opts.LogStats,
		maxTicks:    opts.MaxTicks,
		onRender:    opts.OnRender,
		done:        make(chan struct{}),
	}
	s.SetPerf(g.perf)

	g.sched, err = loop.New(host, cfg.Simulation.FixedStepRate, loop.Callbacks{
		Simulate: g.simulate,
		Render:   g.render,
	},
		loop.WithMaxSteps(cfg.Loop.MaxStepsPerFrame),
		loop.WithLogger(slog.Default()),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	if opts.OutputDir != "" {
		g.output, err = telemetry.NewOutputManager(opts.OutputDir)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := g.output.WriteConfig(cfg); err != nil {
			slog.Error("failed to write config snapshot", "error", err)
		}
		slog.Info("output enabled", "dir", opts.OutputDir)
	}

	return g, nil
}

// simulate advances the simulation by one fixed step.
func (g *Game) simulate(tick uint64) error {
	if g.maxTicks > 0 && tick >= g.maxTicks {
		g.doneOnce.Do(func() { close(g.done) })
		return loop.ErrDone
	}

	d, _ := telemetry.Measure(func() error {
		g.sim.Step(uint32(tick))
		return nil
	})
	g.metrics.Emit(telemetry.MetricSimulate, telemetry.Millis(d))
	g.tick = tick + 1

	g.flushTelemetry()
	return nil
}

// render hands the committed field to the viewer and records frame metrics.
func (g *Game) render() error {
	if g.onRender != nil {
		view := g.sim.Field()
		d, err := telemetry.Measure(func() error {
			return g.onRender(g.tick, view)
		})
		if err != nil {
			return err
		}
		g.metrics.Emit(telemetry.MetricRender, telemetry.Millis(d))
	}

	if lap := g.frames.Lap(); lap > 0 {
		g.metrics.Emit(telemetry.MetricFPS, telemetry.Millis(lap))
	}
	g.perf.RecordFrame()

	clock := g.sched.Clock()
	g.metrics.Emit(telemetry.MetricClock, telemetry.Millis(clock-g.lastClock))
	g.lastClock = clock
	return nil
}

// TogglePause stops a running scheduler or restarts a stopped one.
func (g *Game) TogglePause() {
	if g.sched.IsRunning() {
		g.sched.Stop()
		return
	}
	g.sched.Start()
}

// Paused reports whether the scheduler is stopped.
func (g *Game) Paused() bool {
	return !g.sched.IsRunning()
}

// Done is closed once MaxTicks steps have run.
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// Scheduler returns the loop driving the simulation.
func (g *Game) Scheduler() *loop.Scheduler {
	return g.sched
}

// Sim returns the simulation. Read its field only between frames.
func (g *Game) Sim() *sim.Simulation {
	return g.sim
}

// Metrics returns the rolling viewer metrics.
func (g *Game) Metrics() *telemetry.Metrics {
	return g.metrics
}

// Config returns the configuration the game was built from.
func (g *Game) Config() *config.Config {
	return g.cfg
}

// Tick returns the number of steps simulated so far.
func (g *Game) Tick() uint64 {
	return g.sched.Ticks()
}

// Unload stops the scheduler and releases resources.
func (g *Game) Unload() {
	g.sched.Stop()
	g.sim.Close()
	if err := g.output.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
