package exchange

import (
	"sync"
	"time"
)

// timingWheel is a coarse hashed-wheel timer: a fixed ring of buckets
// advanced one tick at a time, so the registry can arm thousands of
// per-call deadlines without spawning a time.Timer each. No example in
// the retrieval pack ships a reusable timer of its own, so this is
// hand-written in the teacher's mutex-guarded-map idiom (see
// DESIGN.md, "Standard-library-only components").
//
// A deadline longer than tick*len(buckets) wraps around the ring early;
// callers keep timeouts well inside that range (the default slot count
// covers roughly 30 seconds at a 30ms tick, comfortably above the
// framework's default 1000ms request timeout).
type timingWheel struct {
	tick     time.Duration
	buckets  []map[uint64]struct{}
	mu       sync.Mutex
	cursor   int
	onExpire func(id uint64)
	stopCh   chan struct{}
	stopped  bool
}

type wheelHandle struct {
	bucket int
	id     uint64
}

func newTimingWheel(tick time.Duration, slots int, onExpire func(id uint64)) *timingWheel {
	w := &timingWheel{
		tick:     tick,
		buckets:  make([]map[uint64]struct{}, slots),
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
	for i := range w.buckets {
		w.buckets[i] = make(map[uint64]struct{})
	}
	go w.run()
	return w
}

// Schedule arms id to fire after d, rounded up to a whole number of ticks.
func (w *timingWheel) Schedule(d time.Duration, id uint64) wheelHandle {
	ticks := int((d + w.tick - 1) / w.tick)
	if ticks < 1 {
		ticks = 1
	}
	w.mu.Lock()
	bucket := (w.cursor + ticks) % len(w.buckets)
	w.buckets[bucket][id] = struct{}{}
	w.mu.Unlock()
	return wheelHandle{bucket: bucket, id: id}
}

// Cancel removes a still-pending deadline. Calling it after the deadline
// already fired is a harmless no-op.
func (w *timingWheel) Cancel(h wheelHandle) {
	w.mu.Lock()
	delete(w.buckets[h.bucket], h.id)
	w.mu.Unlock()
}

func (w *timingWheel) run() {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.advance()
		}
	}
}

func (w *timingWheel) advance() {
	w.mu.Lock()
	w.cursor = (w.cursor + 1) % len(w.buckets)
	expired := w.buckets[w.cursor]
	w.buckets[w.cursor] = make(map[uint64]struct{})
	w.mu.Unlock()

	for id := range expired {
		w.onExpire(id)
	}
}

func (w *timingWheel) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	close(w.stopCh)
}
