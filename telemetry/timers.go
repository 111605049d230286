package telemetry

import "time"

// LapTimer measures the interval between successive Lap calls.
type LapTimer struct {
	last time.Time
	now  func() time.Time
}

// NewLapTimer creates a timer using the wall clock.
func NewLapTimer() *LapTimer {
	return &LapTimer{now: time.Now}
}

// Start resets the lap origin.
func (t *LapTimer) Start() {
	t.last = t.now()
}

// Lap returns the time since the previous Lap (or Start) and begins a new lap.
// A lap on an unstarted timer returns 0 and starts it.
func (t *LapTimer) Lap() time.Duration {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		return 0
	}
	d := now.Sub(t.last)
	t.last = now
	return d
}

// Measure runs fn and returns its wall time along with fn's error.
func Measure(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}

// Millis converts d to fractional milliseconds, the unit metrics are kept in.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
