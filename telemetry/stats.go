package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// CoverageThreshold is the trail value above which a cell counts as covered.
const CoverageThreshold = 0.05

// MetricsRecord is one row of metrics.csv: viewer timings averaged over the
// rolling metric window at the end of a stats window.
type MetricsRecord struct {
	WindowEnd  uint64  `csv:"window_end"`
	SimTimeSec float64 `csv:"sim_time"`
	SimulateMS float64 `csv:"simulate_ms"`
	RenderMS   float64 `csv:"render_ms"`
	FrameMS    float64 `csv:"frame_ms"`
	ClockMS    float64 `csv:"clock_ms"`
	Dropped    uint64  `csv:"dropped_steps"`
}

// FieldRecord is one row of field.csv: trail distribution at the end of a
// stats window.
type FieldRecord struct {
	WindowEnd  uint64  `csv:"window_end"`
	SimTimeSec float64 `csv:"sim_time"`
	Total      float64 `csv:"total"`
	Mean       float64 `csv:"mean"`
	Peak       float64 `csv:"peak"`
	P10        float64 `csv:"p10"`
	P50        float64 `csv:"p50"`
	P90        float64 `csv:"p90"`
	Coverage   float64 `csv:"coverage"` // Fraction of cells above CoverageThreshold
}

// LogValue implements slog.LogValuer for structured logging.
func (r FieldRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("tick", r.WindowEnd),
		slog.Float64("total", r.Total),
		slog.Float64("peak", r.Peak),
		slog.Float64("p50", r.P50),
		slog.Float64("coverage", r.Coverage),
	)
}

// Percentile returns the p-th quantile of sorted (ascending) with linear
// interpolation between samples. p is clamped to [0, 1]; empty input gives 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(min(max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// Distribution summarizes the spread of trail values over the field.
type Distribution struct {
	P10, P50, P90 float64
	Coverage      float64 // Fraction of cells above CoverageThreshold
}

// CellDistribution computes the distribution of cells. sorted is scratch for
// the ordered copy; it is grown when too small and returned for reuse.
func CellDistribution(cells []float32, sorted []float64) (Distribution, []float64) {
	n := len(cells)
	if n == 0 {
		return Distribution{}, sorted
	}

	if cap(sorted) < n {
		sorted = make([]float64, n)
	}
	sorted = sorted[:n]
	covered := 0
	for i, v := range cells {
		sorted[i] = float64(v)
		if v > CoverageThreshold {
			covered++
		}
	}
	slices.Sort(sorted)

	return Distribution{
		P10:      Percentile(sorted, 0.10),
		P50:      Percentile(sorted, 0.50),
		P90:      Percentile(sorted, 0.90),
		Coverage: float64(covered) / float64(n),
	}, sorted
}
