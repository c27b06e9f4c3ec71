package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/log"
)

// Dispatcher drives TryDispatch with per-entry timers instead of polling.
// A deferred outcome reschedules at the remaining delay; a skipped or
// dispatched outcome ends the chain for that timer.
type Dispatcher struct {
	queue  *Queue
	logger log.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*scheduledTimer
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

// scheduledTimer pairs a timer with the generation it was armed under.
// A fired closure whose generation no longer matches the map entry lost a
// Schedule race and must not dispatch; rearming a timer whose function may
// already be running is never safe, so every Schedule arms a fresh one.
type scheduledTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewDispatcher creates a dispatcher over the queue.
func NewDispatcher(queue *Queue, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		logger: logger.With("component", "dispatcher"),
		timers: make(map[uuid.UUID]*scheduledTimer),
	}
}

// Schedule arranges a dispatch attempt for the entry after delay. A second
// Schedule for the same entry supersedes the pending timer, which is exactly
// what a new message arriving during the quiet window needs.
func (d *Dispatcher) Schedule(id uuid.UUID, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if prev, ok := d.timers[id]; ok && prev.timer.Stop() {
		// Cancelled before firing; its closure never runs, release the slot.
		// A losing Stop means the closure is in flight and settles its own
		// slot once it sees the stale generation.
		d.wg.Done()
	}

	d.gen++
	gen := d.gen
	d.wg.Add(1)
	d.timers[id] = &scheduledTimer{
		gen: gen,
		timer: time.AfterFunc(delay, func() {
			defer d.wg.Done()
			d.fire(id, gen)
		}),
	}
}

func (d *Dispatcher) fire(id uuid.UUID, gen uint64) {
	d.mu.Lock()
	cur, ok := d.timers[id]
	stale := !ok || cur.gen != gen
	if !stale {
		delete(d.timers, id)
	}
	closed := d.closed
	d.mu.Unlock()
	if closed || stale {
		return
	}

	ctx := context.Background()
	outcome, err := d.queue.TryDispatch(ctx, id)
	if err != nil {
		d.logger.Error("dispatch attempt failed", "queue_id", id, "error", err)
		return
	}
	if outcome.Disposition == Deferred {
		d.Schedule(id, outcome.Delay)
	}
}

// Close stops accepting new schedules, cancels pending timers, and waits
// for in-flight dispatches to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for id, t := range d.timers {
		if t.timer.Stop() {
			// Timer cancelled before firing; release its wait slot.
			d.wg.Done()
		}
		delete(d.timers, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
