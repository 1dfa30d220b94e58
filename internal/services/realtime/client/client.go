// Package client is the realtime transport used by campaign views.
//
// A Client keeps one WebSocket open to a relay, reconnecting after failures,
// and dispatches inbound frames to handlers registered by event name. Frames
// are newline-delimited JSON objects of the form
// {"type": ..., "request_id": ..., "payload": ...}.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
	"golang.org/x/net/websocket"
)

// ErrorEvent is the frame type a relay uses to report a failed request.
const ErrorEvent = "error"

// Config describes how to reach the relay.
type Config struct {
	URL         string
	Origin      string
	AccessToken string
	DialTimeout time.Duration
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *peer) writeFrame(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(f)
}

// Client is a reconnecting realtime connection. Handlers and state callbacks
// run on the connection goroutine, one at a time, with no client lock held.
type Client struct {
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	peer      *peer
	connected bool
	nextID    uint64
	handlers  map[string]map[uint64]func(json.RawMessage)
	watchers  map[uint64]func(bool)
	waiters   []chan struct{}
}

// New validates config and starts connecting in the background.
func New(config Config) (*Client, error) {
	wsURL, err := parseURL(config.URL)
	if err != nil {
		return nil, err
	}
	config.URL = wsURL.String()
	if strings.TrimSpace(config.Origin) == "" {
		origin := *wsURL
		origin.Scheme = "http"
		if wsURL.Scheme == "wss" {
			origin.Scheme = "https"
		}
		origin.Path = "/"
		origin.RawQuery = ""
		config.Origin = origin.String()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = timeouts.RealtimeDial
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = timeouts.RealtimeRetry
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:   config,
		logger:   logger.With("component", "realtime"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
		watchers: make(map[uint64]func(bool)),
	}
	go c.run()
	return c, nil
}

func parseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("realtime url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid realtime url scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("realtime url host is required")
	}
	return parsed, nil
}

// Connected reports whether the WebSocket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitConnected blocks until the client is connected or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	c.waiters = append(c.waiters, ready)
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-c.done:
		return apperrors.New(apperrors.CodeNotConnected, "realtime client closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends one frame. It fails with NOT_CONNECTED while disconnected.
func (c *Client) Emit(event string, payload any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "event name is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	c.mu.Lock()
	p := c.peer
	connected := c.connected
	c.mu.Unlock()
	if !connected || p == nil {
		return apperrors.New(apperrors.CodeNotConnected, "realtime transport is not connected")
	}

	if err := p.writeFrame(frame{Type: event, RequestID: uuid.NewString(), Payload: body}); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "write "+event+" frame", err)
	}
	return nil
}

// On registers handler for frames of type event. The returned function
// removes it and is safe to call more than once.
func (c *Client) On(event string, handler func(json.RawMessage)) func() {
	if handler == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	byID, ok := c.handlers[event]
	if !ok {
		byID = make(map[uint64]func(json.RawMessage))
		c.handlers[event] = byID
	}
	byID[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if byID, ok := c.handlers[event]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(c.handlers, event)
			}
		}
	}
}

// OnStateChange registers handler for connect and disconnect transitions.
func (c *Client) OnStateChange(handler func(connected bool)) func() {
	if handler == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close stops reconnecting, closes the connection, and waits for the
// connection goroutine to exit.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.done
}

func (c *Client) run() {
	defer close(c.done)

	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, err := c.dial()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("realtime dial failed", "url", c.config.URL, "error", err)
			if !waitRetry(c.ctx, c.config.RetryDelay) {
				return
			}
			continue
		}

		if !c.attach(conn) {
			return
		}
		c.logger.Info("realtime connected", "url", c.config.URL)
		c.read(conn)
		c.detach(conn)
		c.logger.Info("realtime disconnected", "url", c.config.URL)

		if !waitRetry(c.ctx, c.config.RetryDelay) {
			return
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	wsConfig, err := websocket.NewConfig(c.config.URL, c.config.Origin)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(c.config.AccessToken); token != "" {
		wsConfig.Header = make(http.Header)
		wsConfig.Header.Set("Authorization", "Bearer "+token)
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.config.DialTimeout)
	defer cancel()
	return wsConfig.DialContext(ctx)
}

// attach publishes conn as the live connection. It returns false when the
// client closed while dialing.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.peer = &peer{encoder: json.NewEncoder(conn)}
	c.connected = true
	waiters := c.waiters
	c.waiters = nil
	watchers := c.watchersLocked()
	c.mu.Unlock()

	for _, ready := range waiters {
		close(ready)
	}
	c.notify(watchers, true)
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	c.conn = nil
	c.peer = nil
	c.connected = false
	watchers := c.watchersLocked()
	c.mu.Unlock()

	c.notify(watchers, false)
}

func (c *Client) read(conn *websocket.Conn) {
	decoder := json.NewDecoder(conn)
	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
				c.logger.Warn("realtime read failed", "error", err)
			}
			return
		}
		if f.Type == ErrorEvent {
			c.logger.Warn("realtime error frame", "request_id", f.RequestID, "payload", string(f.Payload))
		}
		c.dispatch(f)
	}
}

// dispatch calls the handlers registered for f.Type in registration order.
// A handler removed while the frame is being dispatched is skipped unless its
// call has already started.
func (c *Client) dispatch(f frame) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.handlers[f.Type]))
	for id := range c.handlers[f.Type] {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		c.mu.Lock()
		handler, ok := c.handlers[f.Type][id]
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.invoke(f.Type, handler, f.Payload)
	}
}

func (c *Client) invoke(event string, handler func(json.RawMessage), payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("realtime handler panicked", "event", event, "panic", r)
		}
	}()
	handler(payload)
}

func (c *Client) watchersLocked() []func(bool) {
	ids := make([]uint64, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	watchers := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		watchers = append(watchers, c.watchers[id])
	}
	return watchers
}

func (c *Client) notify(watchers []func(bool), connected bool) {
	for _, watcher := range watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("realtime state handler panicked", "connected", connected, "panic", r)
				}
			}()
			watcher(connected)
		}()
	}
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
