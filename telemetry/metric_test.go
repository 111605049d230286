package telemetry

import (
	"math"
	"strings"
	"sync"
	"testing"
)

func TestMetric_ReadBeforeEmit(t *testing.T) {
	m := NewMetric(4)
	if v, ok := m.Read(); ok || v != 0 {
		t.Errorf("Read() = (%v, %v), want (0, false)", v, ok)
	}
}

func TestMetric_WindowMean(t *testing.T) {
	tests := []struct {
		name   string
		window int
		values []float64
		want   float64
	}{
		{"single", 4, []float64{3}, 3},
		{"partial window", 4, []float64{1, 2, 3}, 2},
		{"full window", 4, []float64{1, 2, 3, 4}, 2.5},
		{"evicts oldest", 4, []float64{1, 2, 3, 4, 5}, 3.5},
		{"wraps twice", 3, []float64{10, 10, 10, 1, 2, 3, 4, 5, 6}, 5},
		{"window of one", 1, []float64{7, 8, 9}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetric(tt.window)
			for _, v := range tt.values {
				m.Emit(v)
			}
			got, ok := m.Read()
			if !ok {
				t.Fatal("Read() reported no samples")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Read() = %v, want %v", got, tt.want)
			}
			if wantCount := min(len(tt.values), tt.window); m.Count() != wantCount {
				t.Errorf("Count() = %d, want %d", m.Count(), wantCount)
			}
		})
	}
}

func TestMetric_MatchesRecomputedMean(t *testing.T) {
	const window = 100
	m := NewMetric(window)

	var history []float64
	for i := 0; i < 1000; i++ {
		v := math.Sin(float64(i)) * 50
		m.Emit(v)
		history = append(history, v)

		start := max(0, len(history)-window)
		var sum float64
		for _, h := range history[start:] {
			sum += h
		}
		want := sum / float64(len(history)-start)

		got, _ := m.Read()
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("after %d emits: Read() = %v, want %v", i+1, got, want)
		}
	}
}

func TestMetric_DefaultWindow(t *testing.T) {
	if w := NewMetric(0).Window(); w != DefaultMetricWindow {
		t.Errorf("Window() = %d, want %d", w, DefaultMetricWindow)
	}
}

func TestMetrics_PreregisteredAndLazy(t *testing.T) {
	ms := NewMetrics(10)

	names := ms.Names()
	want := []string{MetricSimulate, MetricRender, MetricFPS, MetricClock}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("name %d = %q, want %q", i, names[i], name)
		}
	}

	if _, ok := ms.Read("custom"); ok {
		t.Error("unknown metric should report no samples")
	}
	ms.Emit("custom", 4)
	if v, ok := ms.Read("custom"); !ok || v != 4 {
		t.Errorf("Read(custom) = (%v, %v), want (4, true)", v, ok)
	}
	if len(ms.Names()) != 5 {
		t.Errorf("expected lazily created metric to be registered")
	}
}

func TestMetrics_Format(t *testing.T) {
	ms := NewMetrics(10)
	ms.Emit(MetricRender, 1.3)
	ms.Emit(MetricFPS, 20) // 20ms frames

	got := ms.Format()
	for _, part := range []string{"simulate -", "render 1.3ms", "fps 50", "clock -"} {
		if !strings.Contains(got, part) {
			t.Errorf("Format() = %q, missing %q", got, part)
		}
	}
	if !strings.HasPrefix(got, "simulate") {
		t.Errorf("Format() should follow registration order, got %q", got)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	ms := NewMetrics(10)
	ms.Emit(MetricSimulate, 2)
	ms.Emit(MetricSimulate, 4)

	snap := ms.Snapshot()
	if snap[MetricSimulate] != 3 {
		t.Errorf("snapshot simulate = %v, want 3", snap[MetricSimulate])
	}
	if _, ok := snap[MetricRender]; ok {
		t.Error("metrics without samples should be omitted")
	}
}

func TestMetrics_ConcurrentEmit(t *testing.T) {
	ms := NewMetrics(1000)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ms.Emit(MetricRender, 1)
				ms.Read(MetricRender)
			}
		}()
	}
	wg.Wait()

	if v, ok := ms.Read(MetricRender); !ok || v != 1 {
		t.Errorf("Read() = (%v, %v), want (1, true)", v, ok)
	}
}
