package exchange

import (
	"sync"
	"time"

	"dubbo-exchange/remoting"
)

// ThreadlessExecutor queues completions instead of running them on a
// spawned goroutine; the thread that ends up blocking on the matching
// Future drains the queue itself via Wait. This is what lets a single
// caller goroutine both wait for its own reply and, if other completions
// land first, run those inline rather than leaving them to a pool
// goroutine — used by protocol.AsyncResult.Get() (§4.10) when a caller
// asked for synchronous invoke semantics without spawning extra
// goroutines per call.
type ThreadlessExecutor struct {
	mu      sync.Mutex
	queue   []func()
	waiting *Future
}

func NewThreadlessExecutor() *ThreadlessExecutor {
	return &ThreadlessExecutor{}
}

func (e *ThreadlessExecutor) Execute(task func()) {
	e.mu.Lock()
	e.queue = append(e.queue, task)
	e.mu.Unlock()
}

// setWaiting records the future a future Wait call will be draining for,
// per NewCall's "also recorded as its waiting future" step.
func (e *ThreadlessExecutor) setWaiting(f *Future) {
	e.mu.Lock()
	e.waiting = f
	e.mu.Unlock()
}

// Wait drains queued completions until f is done or timeout elapses
// (timeout<=0 means no deadline).
func (e *ThreadlessExecutor) Wait(f *Future, timeout time.Duration) (*remoting.Response, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		e.mu.Lock()
		var task func()
		if len(e.queue) > 0 {
			task = e.queue[0]
			e.queue = e.queue[1:]
		}
		e.mu.Unlock()

		if task != nil {
			task()
			continue
		}
		if f.IsDone() {
			return f.peek()
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, errFutureTimeout
		}
		time.Sleep(time.Millisecond)
	}
}
