package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"go.uber.org/goleak"
	"golang.org/x/net/websocket"
)

type testRelay struct {
	mu       sync.Mutex
	received []frame
	conns    []*websocket.Conn
	headers  []string
	srv      *httptest.Server
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	relay := &testRelay{}
	relay.srv = httptest.NewServer(websocket.Handler(relay.serve))
	return relay
}

func (r *testRelay) serve(conn *websocket.Conn) {
	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.headers = append(r.headers, conn.Request().Header.Get("Authorization"))
	r.mu.Unlock()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			return
		}
		r.mu.Lock()
		r.received = append(r.received, f)
		r.mu.Unlock()
		if f.Type == "join-room" {
			_ = encoder.Encode(frame{Type: "room.joined", RequestID: f.RequestID, Payload: f.Payload})
		}
	}
}

func (r *testRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/"
}

func (r *testRelay) push(t *testing.T, event string, payload string) {
	t.Helper()
	r.mu.Lock()
	conns := append([]*websocket.Conn(nil), r.conns...)
	r.mu.Unlock()
	if len(conns) == 0 {
		t.Fatal("no relay connection to push to")
	}
	if err := json.NewEncoder(conns[len(conns)-1]).Encode(frame{Type: event, Payload: json.RawMessage(payload)}); err != nil {
		t.Fatalf("push %s: %v", event, err)
	}
}

func (r *testRelay) dropAll() {
	r.mu.Lock()
	conns := append([]*websocket.Conn(nil), r.conns...)
	r.conns = nil
	r.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (r *testRelay) receivedTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.received))
	for _, f := range r.received {
		types = append(types, f.Type)
	}
	return types
}

func connect(t *testing.T, relay *testRelay, token string) *Client {
	t.Helper()
	c, err := New(Config{URL: relay.url(), AccessToken: token, RetryDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitConnected(ctx); err != nil {
		c.Close()
		t.Fatalf("wait connected: %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://relay", "ws://", "://bad"} {
		if _, err := New(Config{URL: raw}); err == nil {
			t.Fatalf("New(%q) returned nil error", raw)
		}
	}
}

func TestParseURLMapsHTTPSchemes(t *testing.T) {
	got, err := parseURL("https://relay.example/ws")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.String() != "wss://relay.example/ws" {
		t.Fatalf("url = %q, want wss://relay.example/ws", got.String())
	}
}

func TestEmitDeliversFrameWithBearerToken(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "tok-1")
	defer c.Close()

	joined := make(chan json.RawMessage, 1)
	off := c.On("room.joined", func(payload json.RawMessage) { joined <- payload })
	defer off()

	if err := c.Emit("join-room", "campaign:c-1"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case payload := <-joined:
		if string(payload) != `"campaign:c-1"` {
			t.Fatalf("ack payload = %s, want \"campaign:c-1\"", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join was not acknowledged")
	}

	relay.mu.Lock()
	header := relay.headers[0]
	requestID := relay.received[0].RequestID
	relay.mu.Unlock()
	if header != "Bearer tok-1" {
		t.Fatalf("authorization = %q, want Bearer tok-1", header)
	}
	if requestID == "" {
		t.Fatal("expected request id on emitted frame")
	}
}

func TestHandlersReceivePushedFramesUntilRemoved(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "")
	defer c.Close()

	var mu sync.Mutex
	var got []string
	off := c.On("donation:created", func(payload json.RawMessage) {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
	})
	relay.push(t, "donation:created", `{"n":1}`)
	waitFor(t, "first delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	off()
	off()
	relay.push(t, "donation:created", `{"n":2}`)
	relay.push(t, "ping", `{}`)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != `{"n":1}` {
		t.Fatalf("deliveries = %v, want [{\"n\":1}]", got)
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "")
	defer c.Close()

	c.On("donation:created", func(json.RawMessage) { panic("boom") })
	delivered := make(chan struct{}, 2)
	c.On("donation:created", func(json.RawMessage) { delivered <- struct{}{} })

	relay.push(t, "donation:created", `{}`)
	relay.push(t, "donation:created", `{}`)
	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d missing after panic", i+1)
		}
	}
}

func TestHandlerRemovedDuringDispatchIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "")
	defer c.Close()

	var (
		mu          sync.Mutex
		offSecond   func()
		secondCalls int
	)
	first := make(chan struct{}, 2)
	c.On("campaign:update:deleted", func(json.RawMessage) {
		mu.Lock()
		off := offSecond
		mu.Unlock()
		off()
		first <- struct{}{}
	})
	off := c.On("campaign:update:deleted", func(json.RawMessage) {
		mu.Lock()
		secondCalls++
		mu.Unlock()
	})
	mu.Lock()
	offSecond = off
	mu.Unlock()

	relay.push(t, "campaign:update:deleted", `{}`)
	relay.push(t, "campaign:update:deleted", `{}`)
	for i := 0; i < 2; i++ {
		select {
		case <-first:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d missing", i+1)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if secondCalls != 0 {
		t.Fatalf("removed handler called %d times", secondCalls)
	}
}

func TestEmitFailsWhenDisconnected(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, err := New(Config{URL: "ws://127.0.0.1:1/", RetryDelay: 10 * time.Millisecond, DialTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if c.Connected() {
		t.Fatal("expected client to be disconnected")
	}
	err = c.Emit("join-room", "campaign:c-1")
	if got := apperrors.CodeOf(err); got != apperrors.CodeNotConnected {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeNotConnected)
	}
}

func TestReconnectNotifiesStateHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "")
	defer c.Close()

	var mu sync.Mutex
	var states []bool
	off := c.OnStateChange(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})
	defer off()

	relay.dropAll()
	waitFor(t, "reconnect", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	})

	mu.Lock()
	got := append([]bool(nil), states[:2]...)
	mu.Unlock()
	if got[0] || !got[1] {
		t.Fatalf("states = %v, want [false true]", got)
	}
	if !c.Connected() {
		t.Fatal("expected client connected after reconnect")
	}
}

func TestEmitFromStateHandlerDoesNotDeadlock(t *testing.T) {
	defer goleak.VerifyNone(t)
	relay := newTestRelay(t)
	defer relay.srv.Close()
	c := connect(t, relay, "")
	defer c.Close()

	c.OnStateChange(func(connected bool) {
		if connected {
			_ = c.Emit("join-room", "campaign:c-9")
		}
	})
	relay.dropAll()
	waitFor(t, "rejoin after reconnect", func() bool {
		for _, typ := range relay.receivedTypes() {
			if typ == "join-room" {
				return true
			}
		}
		return false
	})
}

func TestCloseUnblocksWaitersAndStopsRetrying(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, err := New(Config{URL: "ws://127.0.0.1:1/", RetryDelay: 10 * time.Millisecond, DialTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.WaitConnected(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()
	c.Close()

	select {
	case err := <-errCh:
		if got := apperrors.CodeOf(err); got != apperrors.CodeNotConnected {
			t.Fatalf("code = %s, want %s", got, apperrors.CodeNotConnected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitConnected did not return after Close")
	}
}
