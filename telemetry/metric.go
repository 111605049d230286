package telemetry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// DefaultMetricWindow is the number of samples a Metric averages over.
const DefaultMetricWindow = 100

// Metric names recorded by the viewers.
const (
	MetricSimulate = "simulate" // Wall time of one Simulate callback (ms)
	MetricRender   = "render"   // Wall time of one Render callback (ms)
	MetricFPS      = "fps"      // Interval between rendered frames (ms)
	MetricClock    = "clock"    // Simulated time advanced per rendered frame (ms)
)

// Metric is a rolling mean over the last window samples. Emit and Read are
// O(1). Not safe for concurrent use; Metrics wraps it with a lock.
type Metric struct {
	values []float64
	next   int
	count  int
	sum    float64
}

// NewMetric creates a metric averaging over window samples. window <= 0 uses
// DefaultMetricWindow.
func NewMetric(window int) *Metric {
	if window <= 0 {
		window = DefaultMetricWindow
	}
	return &Metric{values: make([]float64, window)}
}

// Emit records v, evicting the oldest sample once the window is full.
func (m *Metric) Emit(v float64) {
	if m.count < len(m.values) {
		m.count++
		m.sum += v
	} else {
		m.sum += v - m.values[m.next]
	}
	m.values[m.next] = v
	m.next = (m.next + 1) % len(m.values)
}

// Read returns the mean of the resident samples, or false before the first
// Emit.
func (m *Metric) Read() (float64, bool) {
	if m.count == 0 {
		return 0, false
	}
	return m.sum / float64(m.count), true
}

// Count returns the number of resident samples.
func (m *Metric) Count() int {
	return m.count
}

// Window returns the metric's capacity.
func (m *Metric) Window() int {
	return len(m.values)
}

// namedMetric pairs a metric with its display formatter.
type namedMetric struct {
	m      *Metric
	format func(float64) string
}

// Metrics is a goroutine-safe set of named metrics. The four viewer metrics
// exist from the start; other names are created on first Emit.
type Metrics struct {
	mu      sync.Mutex
	window  int
	metrics map[string]*namedMetric
	order   []string
}

// NewMetrics creates the set with simulate, render, fps and clock registered.
func NewMetrics(window int) *Metrics {
	ms := &Metrics{
		window:  window,
		metrics: make(map[string]*namedMetric),
	}
	ms.register(MetricSimulate, formatMillis)
	ms.register(MetricRender, formatMillis)
	ms.register(MetricFPS, formatFPS)
	ms.register(MetricClock, formatMillis)
	return ms
}

func (ms *Metrics) register(name string, format func(float64) string) *namedMetric {
	nm := &namedMetric{m: NewMetric(ms.window), format: format}
	ms.metrics[name] = nm
	ms.order = append(ms.order, name)
	return nm
}

// Emit records v under name.
func (ms *Metrics) Emit(name string, v float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	nm, ok := ms.metrics[name]
	if !ok {
		nm = ms.register(name, formatPlain)
	}
	nm.m.Emit(v)
}

// Read returns the rolling mean for name, or false if nothing was emitted.
func (ms *Metrics) Read(name string) (float64, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	nm, ok := ms.metrics[name]
	if !ok {
		return 0, false
	}
	return nm.m.Read()
}

// Names returns metric names in registration order.
func (ms *Metrics) Names() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]string(nil), ms.order...)
}

// Snapshot returns the current mean of every metric that has samples.
func (ms *Metrics) Snapshot() map[string]float64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make(map[string]float64, len(ms.metrics))
	for name, nm := range ms.metrics {
		if v, ok := nm.m.Read(); ok {
			out[name] = v
		}
	}
	return out
}

// Format renders every metric as "name value" pairs separated by two spaces,
// e.g. "simulate 0.8ms  render 1.2ms  fps 60  clock 16.7ms". Metrics without
// samples show "-".
func (ms *Metrics) Format() string {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	parts := make([]string, 0, len(ms.order))
	for _, name := range ms.order {
		nm := ms.metrics[name]
		text := "-"
		if v, ok := nm.m.Read(); ok {
			text = nm.format(v)
		}
		parts = append(parts, name+" "+text)
	}
	return strings.Join(parts, "  ")
}

// LogValue implements slog.LogValuer.
func (ms *Metrics) LogValue() slog.Value {
	snap := ms.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]slog.Attr, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.Float64(name, snap[name]))
	}
	return slog.GroupValue(attrs...)
}

func formatMillis(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

// formatFPS turns a mean frame interval in ms into frames per second.
func formatFPS(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", 1e3/v)
}

func formatPlain(v float64) string {
	return fmt.Sprintf("%.3g", v)
}
