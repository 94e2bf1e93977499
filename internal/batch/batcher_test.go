package batch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/touchheat/touchheat/internal/models"
)

// recordingTransport captures delivered payloads synchronously.
type recordingTransport struct {
	mu       sync.Mutex
	payloads [][]byte
	finals   [][]byte
	err      error
	block    chan struct{} // when set, Send blocks until closed
}

func (t *recordingTransport) Send(payload []byte) error {
	if t.block != nil {
		<-t.block
	}
	t.mu.Lock()
	t.payloads = append(t.payloads, payload)
	t.mu.Unlock()
	return t.err
}

func (t *recordingTransport) SendFinal(payload []byte) {
	t.mu.Lock()
	t.finals = append(t.finals, payload)
	t.mu.Unlock()
}

func (t *recordingTransport) batches(tb testing.TB) []models.Batch {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	var batches []models.Batch
	for _, p := range append(append([][]byte{}, t.payloads...), t.finals...) {
		var b models.Batch
		if err := json.Unmarshal(p, &b); err != nil {
			tb.Fatalf("failed to decode payload: %v", err)
		}
		batches = append(batches, b)
	}
	return batches
}

func testEvent(x int) models.TouchEvent {
	return models.TouchEvent{
		X: x, Y: 100, ViewportW: 390, ViewportH: 844,
		ThumbZone: models.ZoneCenter, URL: "https://example.com/",
	}
}

func TestPushThresholdFlushesImmediately(t *testing.T) {
	transport := &recordingTransport{}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(time.Hour))

	for i := 0; i < 10; i++ {
		b.Push(testEvent(i))
	}

	batches := transport.batches(t)
	if len(batches) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(batches))
	}
	if len(batches[0].Events) != 10 {
		t.Errorf("expected 10 events in flush, got %d", len(batches[0].Events))
	}
	if batches[0].ProjectID != "proj-1" {
		t.Errorf("project id = %q, want proj-1", batches[0].ProjectID)
	}
	if b.Len() != 0 {
		t.Errorf("queue depth = %d after flush, want 0", b.Len())
	}
}

func TestPushSingleEventFlushesAfterDelay(t *testing.T) {
	transport := &recordingTransport{}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(20*time.Millisecond))

	b.Push(testEvent(1))

	if got := transport.batches(t); len(got) != 0 {
		t.Fatalf("expected no flush before the delay, got %d", len(got))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(transport.batches(t)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delayed flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := transport.batches(t); len(got[0].Events) != 1 {
		t.Errorf("expected 1 event in delayed flush, got %d", len(got[0].Events))
	}
}

func TestFlushSliceBound(t *testing.T) {
	transport := &recordingTransport{}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(time.Hour))

	b.mu.Lock()
	for i := 0; i < 120; i++ {
		b.queue = append(b.queue, testEvent(i))
	}
	b.mu.Unlock()

	b.Flush()
	b.Flush()
	b.Flush()

	batches := transport.batches(t)
	if len(batches) != 3 {
		t.Fatalf("expected 3 flushes for 120 events, got %d", len(batches))
	}
	for i, want := range []int{50, 50, 20} {
		if len(batches[i].Events) != want {
			t.Errorf("flush %d carried %d events, want %d", i, len(batches[i].Events), want)
		}
	}
	// Oldest first
	if batches[0].Events[0].X != 0 || batches[1].Events[0].X != 50 {
		t.Error("flush slices are not FIFO")
	}
}

func TestOnlyOneFlushInFlight(t *testing.T) {
	transport := &recordingTransport{block: make(chan struct{})}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(time.Hour))

	b.mu.Lock()
	for i := 0; i < 60; i++ {
		b.queue = append(b.queue, testEvent(i))
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.Flush()
		close(done)
	}()

	// Wait until the first flush is holding the gate.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		sending := b.sending
		b.mu.Unlock()
		if sending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first flush never started")
		}
		time.Sleep(time.Millisecond)
	}

	// A concurrent flush request must be a no-op.
	b.Flush()
	if got := len(transport.batches(t)); got != 0 {
		t.Fatalf("second flush delivered while first was in flight (%d batches)", got)
	}

	close(transport.block)
	<-done
	if b.Len() != 10 {
		t.Errorf("queue depth = %d, want 10 left for the next trigger", b.Len())
	}
}

func TestDeliveryFailureSwallowedAndRearmed(t *testing.T) {
	transport := &recordingTransport{err: errors.New("network down")}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(10*time.Millisecond))

	b.mu.Lock()
	for i := 0; i < 60; i++ {
		b.queue = append(b.queue, testEvent(i))
	}
	b.mu.Unlock()

	b.Flush() // fails silently, 10 remain, delayed flush re-armed

	deadline := time.Now().Add(2 * time.Second)
	for len(transport.batches(t)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("remaining events were never re-flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	transport := &recordingTransport{}
	b := New("proj-1", "http://ignored", WithTransport(transport), WithFlushDelay(time.Hour))

	b.mu.Lock()
	for i := 0; i < 70; i++ {
		b.queue = append(b.queue, testEvent(i))
	}
	b.mu.Unlock()

	b.Close()

	batches := transport.batches(t)
	total := 0
	for _, batch := range batches {
		if len(batch.Events) > 50 {
			t.Errorf("teardown flush carried %d events, want at most 50", len(batch.Events))
		}
		total += len(batch.Events)
	}
	if total != 70 {
		t.Errorf("drained %d events, want 70", total)
	}
	if b.Len() != 0 {
		t.Errorf("queue depth = %d after Close, want 0", b.Len())
	}

	b.Push(testEvent(99))
	if b.Len() != 0 {
		t.Error("Push after Close should be rejected")
	}
}
