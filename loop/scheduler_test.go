package loop

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const ms = time.Millisecond

// recorder counts callbacks and remembers the ticks it saw.
type recorder struct {
	ticks   []uint64
	renders int

	simErrAt  int // fail Simulate on this call number (1-based), 0 = never
	renderErr error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Simulate: func(tick uint64) error {
			r.ticks = append(r.ticks, tick)
			if r.simErrAt > 0 && len(r.ticks) == r.simErrAt {
				return errors.New("backend lost")
			}
			return nil
		},
		Render: func() error {
			r.renders++
			return r.renderErr
		},
	}
}

func newTestScheduler(t *testing.T, rate float64, r *recorder, opts ...Option) (*Scheduler, *ManualHost) {
	t.Helper()
	host := NewManualHost()
	s, err := New(host, rate, r.callbacks(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, host
}

func TestNewValidates(t *testing.T) {
	host := NewManualHost()
	cb := Callbacks{Simulate: func(uint64) error { return nil }}

	tests := []struct {
		name string
		host Host
		rate float64
		cb   Callbacks
	}{
		{"zero rate", host, 0, cb},
		{"negative rate", host, -5, cb},
		{"nil host", nil, 60, cb},
		{"nil simulate", host, 60, Callbacks{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.host, tt.rate, tt.cb); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFixedCadenceUnderIrregularFrames(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r) // 20ms steps
	s.Start()

	frames := []time.Duration{7 * ms, 19 * ms, 33 * ms, 40 * ms, 41 * ms, 77 * ms, 100 * ms, 101 * ms, 160 * ms, 219 * ms}

	wantRenders := 0
	prev := time.Duration(0)
	for _, now := range frames {
		if host.Frame(now) != 1 {
			t.Fatalf("frame at %v: expected exactly one pending callback", now)
		}
		if now/(20*ms) > prev/(20*ms) {
			wantRenders++
		}
		prev = now
	}

	last := frames[len(frames)-1]
	wantSteps := int(last / (20 * ms))
	if len(r.ticks) != wantSteps {
		t.Errorf("simulate calls = %d, want %d", len(r.ticks), wantSteps)
	}
	if r.renders != wantRenders {
		t.Errorf("render calls = %d, want %d", r.renders, wantRenders)
	}
	for i, tick := range r.ticks {
		if tick != uint64(i) {
			t.Fatalf("tick %d = %d, want sequential", i, tick)
		}
	}
	if s.Clock() != time.Duration(wantSteps)*20*ms {
		t.Errorf("Clock() = %v, want %v", s.Clock(), time.Duration(wantSteps)*20*ms)
	}
	if s.Ticks() != uint64(wantSteps) {
		t.Errorf("Ticks() = %d, want %d", s.Ticks(), wantSteps)
	}
}

func TestNoRenderWithoutSteps(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(5 * ms)
	host.Frame(10 * ms)
	host.Frame(19 * ms)
	if len(r.ticks) != 0 || r.renders != 0 {
		t.Errorf("got %d steps, %d renders before a full step elapsed", len(r.ticks), r.renders)
	}
	host.Frame(20 * ms)
	if len(r.ticks) != 1 || r.renders != 1 {
		t.Errorf("got %d steps, %d renders, want 1/1", len(r.ticks), r.renders)
	}
}

func TestCatchUpRunsMultipleStepsOneRender(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(100 * ms)
	if len(r.ticks) != 5 {
		t.Errorf("simulate calls = %d, want 5", len(r.ticks))
	}
	if r.renders != 1 {
		t.Errorf("render calls = %d, want 1", r.renders)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)

	s.Start()
	s.Start()
	if !s.IsRunning() {
		t.Fatal("expected running")
	}
	if host.Pending() != 1 {
		t.Errorf("pending frames = %d, want 1", host.Pending())
	}
}

func TestStopCancelsPendingFrame(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)

	s.Stop() // no-op while stopped
	s.Start()
	host.Frame(20 * ms)
	s.Stop()
	s.Stop()

	if s.IsRunning() {
		t.Fatal("expected stopped")
	}
	if host.Pending() != 0 {
		t.Errorf("pending frames after Stop = %d, want 0", host.Pending())
	}

	before := len(r.ticks)
	host.Frame(500 * ms)
	if len(r.ticks) != before {
		t.Errorf("simulate ran after Stop")
	}
}

// keepHost remembers every requested callback, cancelled or not.
type keepHost struct {
	*ManualHost
	all []func(time.Duration)
}

func (h *keepHost) RequestFrame(fn func(now time.Duration)) FrameID {
	h.all = append(h.all, fn)
	return h.ManualHost.RequestFrame(fn)
}

func TestStaleCallbackIgnoredAfterRestart(t *testing.T) {
	r := &recorder{}
	host := &keepHost{ManualHost: NewManualHost()}
	s, err := New(host, 50, r.callbacks())
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	stale := host.all[0]
	s.Stop()
	s.Start()

	// A callback from the first run fires late
	stale(40 * ms)
	if len(r.ticks) != 0 {
		t.Fatalf("stale callback simulated %d steps", len(r.ticks))
	}

	host.Frame(40 * ms)
	if len(r.ticks) != 2 {
		t.Errorf("simulate calls = %d, want 2", len(r.ticks))
	}
}

func TestNegativeFrameTimeClamped(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(30 * ms) // 1 step, 10ms left over
	host.Frame(10 * ms) // clock went backwards
	if len(r.ticks) != 1 {
		t.Fatalf("simulate calls = %d, want 1", len(r.ticks))
	}
	host.Frame(20 * ms) // +10ms on top of the 10ms remainder
	if len(r.ticks) != 2 {
		t.Errorf("simulate calls = %d, want 2", len(r.ticks))
	}
}

func TestSetRateKeepsAccumulatedTime(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(30 * ms) // 1 step at 20ms, 10ms accumulated
	if err := s.SetRate(100); err != nil {
		t.Fatal(err)
	}
	if s.FixedStep() != 10*ms {
		t.Fatalf("FixedStep() = %v, want 10ms", s.FixedStep())
	}

	host.Frame(35 * ms) // 15ms accumulated → 1 step at 10ms
	if len(r.ticks) != 2 {
		t.Errorf("simulate calls = %d, want 2", len(r.ticks))
	}
	if s.Clock() != 30*ms {
		t.Errorf("Clock() = %v, want 30ms", s.Clock())
	}

	if err := s.SetRate(0); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("SetRate(0) err = %v, want ErrInvalidRate", err)
	}
}

func TestStepCapDropsExcess(t *testing.T) {
	r := &recorder{}
	s, host := newTestScheduler(t, 50, r, WithMaxSteps(2))
	s.Start()

	host.Frame(205 * ms) // 10 steps due, 2 run, 8 dropped, 5ms left
	if len(r.ticks) != 2 {
		t.Errorf("simulate calls = %d, want 2", len(r.ticks))
	}
	if s.Dropped() != 8 {
		t.Errorf("Dropped() = %d, want 8", s.Dropped())
	}

	host.Frame(214 * ms) // 14ms accumulated
	if len(r.ticks) != 2 {
		t.Errorf("simulate calls = %d, want still 2", len(r.ticks))
	}
	host.Frame(221 * ms) // 21ms accumulated
	if len(r.ticks) != 3 {
		t.Errorf("simulate calls = %d, want 3", len(r.ticks))
	}
}

func TestSimulateErrorStopsScheduler(t *testing.T) {
	r := &recorder{simErrAt: 3}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(100 * ms)

	if s.IsRunning() {
		t.Error("expected scheduler to stop on simulate error")
	}
	if s.Err() == nil {
		t.Error("expected Err() to report the failure")
	}
	if len(r.ticks) != 3 {
		t.Errorf("simulate calls = %d, want 3", len(r.ticks))
	}
	if r.renders != 0 {
		t.Errorf("render ran after a failed step")
	}
	if host.Pending() != 0 {
		t.Errorf("pending frames = %d, want 0", host.Pending())
	}

	// Restart clears the error
	r.simErrAt = 0
	s.Start()
	if s.Err() != nil {
		t.Errorf("Err() after restart = %v, want nil", s.Err())
	}
}

func TestDoneStopsWithoutError(t *testing.T) {
	var calls int
	host := NewManualHost()
	s, err := New(host, 50, Callbacks{
		Simulate: func(tick uint64) error {
			calls++
			if tick == 2 {
				return ErrDone
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	host.Frame(100 * ms)

	if s.IsRunning() {
		t.Error("expected scheduler to stop on ErrDone")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
	if calls != 3 || s.Ticks() != 2 {
		t.Errorf("calls = %d, ticks = %d, want 3 and 2", calls, s.Ticks())
	}
}

func TestRenderErrorStopsScheduler(t *testing.T) {
	r := &recorder{renderErr: errors.New("device lost")}
	s, host := newTestScheduler(t, 50, r)
	s.Start()

	host.Frame(20 * ms)

	if s.IsRunning() {
		t.Error("expected scheduler to stop on render error")
	}
	if !errors.Is(s.Err(), r.renderErr) {
		t.Errorf("Err() = %v, want wrapped render error", s.Err())
	}
}

func TestTimerHostRunsAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	host := NewTimerHost(500)
	defer host.Close()

	s, err := New(host, 500, Callbacks{
		Simulate: func(tick uint64) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	deadline := time.After(5 * time.Second)
	for s.Ticks() < 5 {
		select {
		case <-deadline:
			t.Fatal("timer host produced no steps")
		case <-time.After(5 * ms):
		}
	}
	s.Stop()

	after := s.Ticks()
	time.Sleep(20 * ms)
	if s.Ticks() != after {
		t.Errorf("ticks advanced after Stop: %d -> %d", after, s.Ticks())
	}
}
