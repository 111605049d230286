package main

import (
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/sim"
	"github.com/pthm-cable/slime/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	ticks       uint64
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64

	// Optional field/population overrides for faster evaluations
	width, height, agents int

	mu          sync.Mutex
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks uint64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		ticks:       ticks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 2.0,
	}
}

// SetSize overrides the field size and agent count. Zero keeps the config value.
func (fe *FitnessEvaluator) SetSize(width, height, agents int) {
	fe.width, fe.height, fe.agents = width, height, agents
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is the negated mean pattern quality across seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	qualities := make([]float64, len(fe.seeds))

	// Seeds run in parallel, each on a serial dispatcher
	var eg errgroup.Group
	for i, seed := range fe.seeds {
		eg.Go(func() error {
			windows, err := fe.runSimulation(x, seed)
			if err != nil {
				return err
			}
			qualities[i] = computeQuality(windows)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// Parameters the simulation rejects are the worst possible result
		return 0
	}

	quality := stat.Mean(qualities, nil)

	fe.mu.Lock()
	fe.lastQuality = quality
	fe.mu.Unlock()

	return -quality
}

// runSimulation executes a single headless run and returns one field record
// per stats window.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) ([]telemetry.FieldRecord, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	simCfg := cfg.Sim()
	if fe.width > 0 {
		simCfg.Width = fe.width
	}
	if fe.height > 0 {
		simCfg.Height = fe.height
	}
	if fe.agents > 0 {
		simCfg.AgentCount = fe.agents
	}

	s, err := sim.New(simCfg, seed, sim.Serial{})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	collector := telemetry.NewCollector(fe.statsWindow, 1/simCfg.FixedStepRate)
	var windows []telemetry.FieldRecord
	for tick := uint64(0); tick < fe.ticks; tick++ {
		s.Step(uint32(tick))
		if collector.ShouldFlush(tick + 1) {
			_, fr := collector.Flush(tick+1, s.Field(), nil, 0)
			windows = append(windows, fr)
		}
	}
	return windows, nil
}

// copyConfig creates a copy of the base config. Config holds no pointers.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// Quality scoring.
const (
	qualityWarmupFraction = 0.5 // skip the first half of the windows
	qualityStabilityScale = 4.0 // penalty per unit CV of total mass
)

// computeQuality scores how network-like the field is, in [0, 1]. A good
// pattern has strong contrast (bright veins over a dark background), covers a
// moderate share of the field and keeps its total mass steady.
func computeQuality(windows []telemetry.FieldRecord) float64 {
	skip := int(float64(len(windows)) * qualityWarmupFraction)
	valid := windows[skip:]
	if len(valid) == 0 {
		return 0
	}

	scores := make([]float64, 0, len(valid))
	totals := make([]float64, 0, len(valid))
	for _, w := range valid {
		scores = append(scores, patternScore(w))
		totals = append(totals, w.Total)
	}

	quality := stat.Mean(scores, nil)

	if len(totals) >= 2 {
		mean, std := stat.MeanStdDev(totals, nil)
		if mean > 0 {
			cv := std / mean
			quality *= math.Exp(-qualityStabilityScale * cv * cv)
		}
	}

	return clamp01(quality)
}

// patternScore rates a single window: contrast between the 90th and 10th
// percentile relative to the peak, times a coverage term that peaks at half
// the field.
func patternScore(w telemetry.FieldRecord) float64 {
	if !(w.Peak > 0) || math.IsInf(w.Peak, 0) {
		return 0
	}
	contrast := (w.P90 - w.P10) / w.Peak
	coverage := 4 * w.Coverage * (1 - w.Coverage)
	score := contrast * coverage
	if math.IsNaN(score) {
		return 0
	}
	return clamp01(score)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
