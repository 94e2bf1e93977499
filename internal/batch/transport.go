package batch

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// Transport delivers a serialized ingest envelope. Send is the normal
// path; SendFinal is the unload-safe path used during teardown, which
// must not depend on the caller sticking around for a response.
type Transport interface {
	Send(payload []byte) error
	SendFinal(payload []byte)
}

// BeaconTransport is the fire-and-forget variant: delivery happens in a
// background goroutine and Send returns immediately, mirroring
// navigator.sendBeacon. Errors are discarded.
type BeaconTransport struct {
	endpoint string
	client   *http.Client
	wg       sync.WaitGroup
}

// NewBeaconTransport creates the unload-safe fire-and-forget transport.
func NewBeaconTransport(endpoint string) *BeaconTransport {
	return &BeaconTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *BeaconTransport) Send(payload []byte) error {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.post(payload)
	}()
	return nil
}

// SendFinal posts synchronously so the events leave before teardown
// completes, still ignoring the outcome.
func (t *BeaconTransport) SendFinal(payload []byte) {
	t.post(payload)
}

// Wait blocks until all in-flight background sends have completed.
func (t *BeaconTransport) Wait() {
	t.wg.Wait()
}

func (t *BeaconTransport) post(payload []byte) {
	resp, err := t.client.Post(t.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// KeepaliveTransport is the standard request-with-callback variant:
// Send blocks until the request completes and reports the outcome so the
// batcher can re-arm its flush timer.
type KeepaliveTransport struct {
	endpoint string
	client   *http.Client
}

// NewKeepaliveTransport creates the synchronous fallback transport.
func NewKeepaliveTransport(endpoint string) *KeepaliveTransport {
	return &KeepaliveTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *KeepaliveTransport) Send(payload []byte) error {
	resp, err := t.client.Post(t.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (t *KeepaliveTransport) SendFinal(payload []byte) {
	_ = t.Send(payload)
}
