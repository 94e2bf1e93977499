// Package batch buffers classified touch events and delivers them to the
// ingestion endpoint in bounded batches, best-effort and at-most-once.
package batch

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/touchheat/touchheat/internal/models"
)

const (
	// flushCount triggers an immediate flush once the queue reaches it.
	flushCount = 10
	// flushSlice bounds how many events a single delivery may carry.
	flushSlice = 50
	// flushDelay is the debounce applied to sub-threshold queues.
	flushDelay = 100 * time.Millisecond
)

// Batcher accumulates events and flushes them on a count threshold, a
// delay timer, or Close. Only one flush is ever in flight; a flush
// request while one is active is a no-op and the data stays queued.
type Batcher struct {
	projectID string
	transport Transport
	delay     time.Duration

	mu         sync.Mutex
	queue      []models.TouchEvent
	sending    bool
	timerArmed bool
	closed     bool
}

// Option adjusts a Batcher at construction time.
type Option func(*Batcher)

// WithTransport overrides the runtime-selected delivery transport.
func WithTransport(t Transport) Option {
	return func(b *Batcher) { b.transport = t }
}

// WithFlushDelay overrides the debounce delay (tests only need this).
func WithFlushDelay(d time.Duration) Option {
	return func(b *Batcher) { b.delay = d }
}

// New creates a Batcher delivering to endpoint on behalf of projectID.
// By default the fire-and-forget beacon transport is selected, matching
// the capture snippet's preference for unload-safe delivery.
func New(projectID, endpoint string, opts ...Option) *Batcher {
	b := &Batcher{
		projectID: projectID,
		transport: NewBeaconTransport(endpoint),
		delay:     flushDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends one classified event. Reaching the count threshold flushes
// immediately; otherwise a delayed flush is armed if none is pending.
func (b *Batcher) Push(ev models.TouchEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, ev)
	ready := len(b.queue) >= flushCount
	arm := !ready && !b.timerArmed
	if arm {
		b.timerArmed = true
	}
	b.mu.Unlock()

	if ready {
		b.Flush()
	} else if arm {
		time.AfterFunc(b.delay, func() {
			b.mu.Lock()
			b.timerArmed = false
			b.mu.Unlock()
			b.Flush()
		})
	}
}

// Len reports the current queue depth.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush delivers up to 50 of the oldest queued events. It is a no-op when
// the queue is empty or another flush is in flight. Delivery failures are
// swallowed; if events remain afterwards, a delayed flush is re-armed.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.sending || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	b.sending = true
	events := b.take(flushSlice)
	b.mu.Unlock()

	// Telemetry is lossy by design: the batch is gone from the queue
	// whether or not delivery succeeds.
	_ = b.transport.Send(b.payload(events))

	b.mu.Lock()
	b.sending = false
	remaining := len(b.queue) > 0 && !b.closed
	rearm := remaining && !b.timerArmed
	if rearm {
		b.timerArmed = true
	}
	b.mu.Unlock()

	if rearm {
		time.AfterFunc(b.delay, func() {
			b.mu.Lock()
			b.timerArmed = false
			b.mu.Unlock()
			b.Flush()
		})
	}
}

// Close is the page-teardown hook: it drains whatever remains queued in
// 50-event slices through the transport's unload-safe path and rejects
// further pushes.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	var slices [][]models.TouchEvent
	for len(b.queue) > 0 {
		slices = append(slices, b.take(flushSlice))
	}
	b.mu.Unlock()

	for _, events := range slices {
		b.transport.SendFinal(b.payload(events))
	}
}

// take removes up to n of the oldest events. Caller holds b.mu.
func (b *Batcher) take(n int) []models.TouchEvent {
	if n > len(b.queue) {
		n = len(b.queue)
	}
	events := make([]models.TouchEvent, n)
	copy(events, b.queue[:n])
	b.queue = b.queue[n:]
	return events
}

func (b *Batcher) payload(events []models.TouchEvent) []byte {
	data, err := json.Marshal(models.Batch{ProjectID: b.projectID, Events: events})
	if err != nil {
		return nil
	}
	return data
}
