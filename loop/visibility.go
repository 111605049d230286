package loop

import "sync"

// Visibility pauses a scheduler while its output cannot be seen and resumes it
// afterwards, but only if the pause was its own. A user Stop while inactive
// cancels the automatic resume.
type Visibility struct {
	mu     sync.Mutex
	s      *Scheduler
	paused bool
	stops  uint64 // scheduler stop count when we paused
}

// NewVisibility creates a guard for s.
func NewVisibility(s *Scheduler) *Visibility {
	return &Visibility{s: s}
}

// Inactive stops a running scheduler and remembers doing so.
func (v *Visibility) Inactive() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused || !v.s.IsRunning() {
		return
	}
	v.stops = v.s.stopCount()
	v.s.halt()
	v.paused = true
}

// Active restarts the scheduler if Inactive stopped it and nobody stopped it
// explicitly since.
func (v *Visibility) Active() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.paused {
		return
	}
	v.paused = false
	if v.s.stopCount() == v.stops {
		v.s.Start()
	}
}

// Paused reports whether the scheduler is currently auto-paused.
func (v *Visibility) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}
