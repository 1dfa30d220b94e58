package server

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// stalledConn never drains: writes block until the write deadline passes.
type stalledConn struct {
	mu       sync.Mutex
	deadline time.Time
	closed   bool
}

func (c *stalledConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *stalledConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	if deadline.IsZero() {
		select {}
	}
	time.Sleep(time.Until(deadline))
	return 0, os.ErrDeadlineExceeded
}

func (c *stalledConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stalledConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type bufferConn struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *bufferConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *bufferConn) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func TestBroadcastSkipsStalledPeer(t *testing.T) {
	hub := newRoomHub(NewMetrics(prometheus.NewRegistry()))
	stalled := &stalledConn{}
	slow := newWSPeer(stalled)
	slow.timeout = 20 * time.Millisecond
	healthy := &bufferConn{}
	hub.join("campaign:c-1", slow)
	hub.join("campaign:c-1", newWSPeer(healthy))

	done := make(chan int, 1)
	go func() {
		done <- hub.broadcast("campaign:c-1", wsFrame{Type: "donation:created"})
	}()
	select {
	case delivered := <-done:
		if delivered != 1 {
			t.Fatalf("delivered = %d, want 1", delivered)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a stalled peer")
	}

	if !stalled.isClosed() {
		t.Fatal("stalled connection left open")
	}
	if healthy.String() == "" {
		t.Fatal("healthy peer received nothing")
	}
	if got := testutil.ToFloat64(hub.metrics.deliveries); got != 1 {
		t.Fatalf("deliveries = %v, want 1", got)
	}
}
