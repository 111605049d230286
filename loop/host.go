package loop

import (
	"sort"
	"sync"
	"time"
)

// FrameID identifies a requested frame so it can be cancelled.
type FrameID uint64

// Host delivers frame callbacks. Timestamps are durations since the host's own
// epoch and should be non-decreasing. RequestFrame must not invoke fn
// synchronously.
type Host interface {
	Now() time.Duration
	RequestFrame(fn func(now time.Duration)) FrameID
	CancelFrame(id FrameID)
}

// ManualHost runs requested frames when the caller pumps Frame. The window and
// terminal viewers pump it from their draw loops; tests pump it with synthetic
// timestamps.
type ManualHost struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  FrameID
	pending map[FrameID]func(time.Duration)
}

// NewManualHost creates a host at time zero.
func NewManualHost() *ManualHost {
	return &ManualHost{pending: make(map[FrameID]func(time.Duration))}
}

// Now returns the timestamp of the last Frame call.
func (h *ManualHost) Now() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// RequestFrame implements Host.
func (h *ManualHost) RequestFrame(fn func(now time.Duration)) FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.pending[h.nextID] = fn
	return h.nextID
}

// CancelFrame implements Host.
func (h *ManualHost) CancelFrame(id FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
}

// Pending returns the number of outstanding frame requests.
func (h *ManualHost) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Frame advances the host clock to now and runs every callback requested
// before this call, oldest first. Requests made by those callbacks wait for
// the next Frame. Returns the number of callbacks run.
func (h *ManualHost) Frame(now time.Duration) int {
	h.mu.Lock()
	h.now = now
	ids := make([]FrameID, 0, len(h.pending))
	for id := range h.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(time.Duration), len(ids))
	for i, id := range ids {
		fns[i] = h.pending[id]
		delete(h.pending, id)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
	return len(fns)
}

// TimerHost delivers frames from timers at a fixed interval. Used when nothing
// else paces the loop (headless and serve modes).
type TimerHost struct {
	interval time.Duration
	epoch    time.Time

	mu     sync.Mutex
	nextID FrameID
	timers map[FrameID]*time.Timer
	closed bool
}

// NewTimerHost creates a host delivering roughly fps frames per second.
func NewTimerHost(fps float64) *TimerHost {
	interval := time.Second / 60
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &TimerHost{
		interval: interval,
		epoch:    time.Now(),
		timers:   make(map[FrameID]*time.Timer),
	}
}

// Now implements Host.
func (h *TimerHost) Now() time.Duration {
	return time.Since(h.epoch)
}

// Interval returns the delay between a request and its frame.
func (h *TimerHost) Interval() time.Duration {
	return h.interval
}

// RequestFrame implements Host. Requests after Close are ignored.
func (h *TimerHost) RequestFrame(fn func(now time.Duration)) FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.closed {
		return id
	}
	h.timers[id] = time.AfterFunc(h.interval, func() {
		h.mu.Lock()
		_, live := h.timers[id]
		delete(h.timers, id)
		h.mu.Unlock()
		if live {
			fn(h.Now())
		}
	})
	return id
}

// CancelFrame implements Host.
func (h *TimerHost) CancelFrame(id FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.timers[id]; ok {
		t.Stop()
		delete(h.timers, id)
	}
}

// Close stops every outstanding timer.
func (h *TimerHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
}
