// Package loop drives the simulation at a fixed logical rate from whatever
// frame cadence the host delivers.
package loop

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRate is the fixed simulation rate in steps per second.
const DefaultRate = 60.0

// ErrInvalidRate is returned for non-positive or non-finite rates.
var ErrInvalidRate = errors.New("loop: invalid rate")

// ErrDone may be returned by a callback to stop the scheduler without it
// counting as a failure. Err stays nil.
var ErrDone = errors.New("loop: done")

// Callbacks are invoked from the host's frame callback. Simulate runs once per
// fixed step with the zero-based tick number; Render runs once after a frame
// that simulated at least one step. A returned error stops the scheduler.
//
// Callbacks must not call Start, Stop or SetRate. Read accessors are fine.
type Callbacks struct {
	Simulate func(tick uint64) error
	Render   func() error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxSteps caps the steps simulated per frame. Excess accumulated time is
// dropped and counted by Dropped. n <= 0 means unbounded.
func WithMaxSteps(n int) Option {
	return func(s *Scheduler) {
		s.maxSteps = max(n, 0)
	}
}

// WithLogger sets the logger used to report callback failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// Scheduler is a fixed-timestep accumulator loop.
type Scheduler struct {
	host Host
	cb   Callbacks
	log  *slog.Logger

	// frameMu is held for a whole frame, callbacks included, so Stop can wait
	// for an in-flight frame.
	frameMu sync.Mutex

	mu          sync.Mutex
	fixedStep   time.Duration
	maxSteps    int
	running     bool
	gen         uint64
	pending     FrameID
	hasPending  bool
	lastFrame   time.Duration
	accumulated time.Duration
	clock       time.Duration
	ticks       uint64
	dropped     uint64
	stops       uint64 // user Stop calls, including no-ops
	err         error
}

// New creates a stopped scheduler running at rate steps per second.
func New(host Host, rate float64, cb Callbacks, opts ...Option) (*Scheduler, error) {
	if host == nil {
		return nil, errors.New("loop: nil host")
	}
	if cb.Simulate == nil {
		return nil, errors.New("loop: nil simulate callback")
	}
	step, err := stepFor(rate)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		host:      host,
		cb:        cb,
		log:       slog.Default(),
		fixedStep: step,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func stepFor(rate float64) (time.Duration, error) {
	if !(rate > 0) || rate > float64(time.Second) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return time.Duration(float64(time.Second) / rate), nil
}

// Start begins requesting frames. It is a no-op while running. Starting
// resets the frame origin and clears any previous error, but keeps the
// logical clock and tick count.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.err = nil
	s.gen++
	s.lastFrame = s.host.Now()
	s.accumulated = 0
	s.requestLocked()
}

// Stop cancels the pending frame and waits for an in-flight frame to finish.
// After Stop returns no callback runs until the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()

	s.halt()
}

// halt stops without counting as a user Stop.
func (s *Scheduler) halt() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.mu.Unlock()

	// Wait out a frame that passed its generation check before we stopped.
	s.frameMu.Lock()
	s.frameMu.Unlock()
}

func (s *Scheduler) stopLocked() {
	s.running = false
	s.gen++
	if s.hasPending {
		s.host.CancelFrame(s.pending)
		s.hasPending = false
	}
}

// SetRate changes the fixed step for subsequent frames. Accumulated time is
// kept as is.
func (s *Scheduler) SetRate(rate float64) error {
	step, err := stepFor(rate)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fixedStep = step
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether the scheduler is requesting frames.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Clock returns the logical time simulated so far.
func (s *Scheduler) Clock() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Ticks returns the number of completed simulation steps.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Dropped returns the number of steps discarded by the step cap.
func (s *Scheduler) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// FixedStep returns the current logical step length.
func (s *Scheduler) FixedStep() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fixedStep
}

// Err returns the callback error that stopped the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scheduler) stopCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// requestLocked asks the host for the next frame on behalf of the current
// generation.
func (s *Scheduler) requestLocked() {
	gen := s.gen
	s.pending = s.host.RequestFrame(func(now time.Duration) {
		s.frame(gen, now)
	})
	s.hasPending = true
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.gen == gen
}

// frame runs one host frame for generation gen.
func (s *Scheduler) frame(gen uint64, now time.Duration) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.hasPending = false

	frameTime := max(now-s.lastFrame, 0)
	s.lastFrame = now
	s.accumulated += frameTime

	step := s.fixedStep
	steps := int(s.accumulated / step)
	if s.maxSteps > 0 && steps > s.maxSteps {
		excess := steps - s.maxSteps
		s.dropped += uint64(excess)
		s.accumulated -= time.Duration(excess) * step
		steps = s.maxSteps
	}
	s.accumulated -= time.Duration(steps) * step
	tick := s.ticks
	s.mu.Unlock()

	for i := 0; i < steps; i++ {
		if !s.current(gen) {
			return
		}
		if err := s.cb.Simulate(tick); err != nil {
			s.fail(gen, fmt.Errorf("simulate tick %d: %w", tick, err))
			return
		}
		tick++

		s.mu.Lock()
		s.clock += step
		s.ticks = tick
		s.mu.Unlock()
	}

	if steps > 0 && s.cb.Render != nil {
		if err := s.cb.Render(); err != nil {
			s.fail(gen, fmt.Errorf("render: %w", err))
			return
		}
	}

	s.mu.Lock()
	if s.running && s.gen == gen {
		s.requestLocked()
	}
	s.mu.Unlock()
}

// fail stops the scheduler after a callback error. No retry.
func (s *Scheduler) fail(gen uint64, err error) {
	done := errors.Is(err, ErrDone)

	s.mu.Lock()
	if s.gen == gen {
		s.stopLocked()
		if !done {
			s.err = err
		}
	}
	s.mu.Unlock()

	if done {
		s.log.Info("scheduler finished", "ticks", s.Ticks())
		return
	}
	s.log.Error("scheduler stopped", "err", err)
}
