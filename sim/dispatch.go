package sim

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum item count to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// Dispatcher runs kernel over [0, n) split into disjoint [start, end) chunks and
// returns once every chunk has finished. Kernels must only write state owned by
// their own indices.
type Dispatcher interface {
	Dispatch(n int, kernel func(start, end int))
}

// Serial runs every kernel inline on the calling goroutine.
type Serial struct{}

// Dispatch implements Dispatcher.
func (Serial) Dispatch(n int, kernel func(start, end int)) {
	if n > 0 {
		kernel(0, n)
	}
}

// workChunk represents a range of items for a worker to process.
type workChunk struct {
	start, end int
	kernel     func(start, end int)
}

// Pool is a Dispatcher backed by persistent worker goroutines. Workers start on
// the first dispatch that crosses parallelThreshold and run until Close.
type Pool struct {
	numWorkers int

	mu       sync.Mutex     // serializes Dispatch and Close
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
	closed   bool
}

// NewPool creates a pool with the given number of workers. workers <= 0 uses
// runtime.GOMAXPROCS(0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: workers}
}

// Workers returns the number of worker goroutines the pool runs.
func (p *Pool) Workers() int {
	return p.numWorkers
}

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.kernel(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Dispatch implements Dispatcher. Small inputs and dispatches after Close run
// inline.
func (p *Pool) Dispatch(n int, kernel func(start, end int)) {
	if n <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n < parallelThreshold || p.closed || p.numWorkers == 1 {
		kernel(0, n)
		return
	}

	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end, kernel: kernel}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

// Close signals all workers to exit and waits for them. It is safe to call more
// than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}
