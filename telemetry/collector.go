package telemetry

import "github.com/pthm-cable/slime/field"

// Collector cuts the run into windows of simulated time and produces one
// MetricsRecord and FieldRecord per window.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks uint64
	stepSec             float64

	// Current window tracking
	windowStartTick uint64

	// Scratch for percentile calculation
	cells  []float32
	sorted []float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// stepSec: seconds per simulation step
func NewCollector(windowDurationSec, stepSec float64) *Collector {
	var ticksPerWindow uint64 = 1
	if stepSec > 0 && windowDurationSec > stepSec {
		ticksPerWindow = uint64(windowDurationSec / stepSec)
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		stepSec:             stepSec,
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush summarizes the window ending at currentTick and starts the next one.
// dropped is the scheduler's cumulative dropped step count.
func (c *Collector) Flush(currentTick uint64, view field.View, metrics *Metrics, dropped uint64) (MetricsRecord, FieldRecord) {
	simTime := float64(currentTick) * c.stepSec

	mr := MetricsRecord{
		WindowEnd:  currentTick,
		SimTimeSec: simTime,
		Dropped:    dropped,
	}
	if metrics != nil {
		mr.SimulateMS, _ = metrics.Read(MetricSimulate)
		mr.RenderMS, _ = metrics.Read(MetricRender)
		mr.FrameMS, _ = metrics.Read(MetricFPS)
		mr.ClockMS, _ = metrics.Read(MetricClock)
	}

	stats := view.Stats()
	if n := view.Width() * view.Height(); cap(c.cells) < n {
		c.cells = make([]float32, n)
	} else {
		c.cells = c.cells[:n]
	}
	view.CopyTo(c.cells)
	var dist Distribution
	dist, c.sorted = CellDistribution(c.cells, c.sorted)

	fr := FieldRecord{
		WindowEnd:  currentTick,
		SimTimeSec: simTime,
		Total:      stats.Total,
		Mean:       stats.Mean,
		Peak:       stats.Peak,
		P10:        dist.P10,
		P50:        dist.P50,
		P90:        dist.P90,
		Coverage:   dist.Coverage,
	}

	// Reset for next window
	c.windowStartTick = currentTick

	return mr, fr
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}
