package telemetry

import (
	"errors"
	"testing"
	"time"
)

func TestLapTimer_Laps(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	lt := &LapTimer{now: func() time.Time { return clock }}

	lt.Start()
	clock = clock.Add(16 * time.Millisecond)
	if d := lt.Lap(); d != 16*time.Millisecond {
		t.Errorf("first lap = %v, want 16ms", d)
	}

	clock = clock.Add(5 * time.Millisecond)
	if d := lt.Lap(); d != 5*time.Millisecond {
		t.Errorf("second lap = %v, want 5ms", d)
	}
}

func TestLapTimer_UnstartedLapIsZero(t *testing.T) {
	lt := NewLapTimer()
	if d := lt.Lap(); d != 0 {
		t.Errorf("Lap() on unstarted timer = %v, want 0", d)
	}
}

func TestMeasure(t *testing.T) {
	errBoom := errors.New("boom")
	d, err := Measure(func() error {
		time.Sleep(2 * time.Millisecond)
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
	if d < 2*time.Millisecond {
		t.Errorf("duration = %v, want >= 2ms", d)
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("Millis = %v, want 1.5", got)
	}
}
