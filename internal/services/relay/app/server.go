// Package server hosts the campaign relay: a WebSocket room hub that speaks
// the join-room/leave-room protocol and fans published events out to rooms.
//
// The relay is transport only. It never interprets event payloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/subscription"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	maxRoomNameBytes       = 256
	maxPublishBodyBytes    = 256 * 1024

	roomJoinedFrame = "room.joined"
	roomLeftFrame   = "room.left"
	errorFrame      = "error"

	codeResourceExhausted apperrors.Code = "RESOURCE_EXHAUSTED"
)

// Config defines the relay's listeners and its optional broker bridge.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// AMQP enables the broker bridge when its URL is set.
	AMQP BridgeConfig

	// Registerer receives relay metrics; Gatherer, when set, is served on
	// /metrics.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server hosts the relay HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	hub             *roomHub
	bridgeStop      context.CancelFunc
	bridgeDone      chan struct{}
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type roomPayload struct {
	Room        string `json:"room"`
	Subscribers int    `json:"subscribers,omitempty"`
}

// publishRequest addresses one event to a room, either directly or through a
// campaign id.
type publishRequest struct {
	Room       string          `json:"room,omitempty"`
	CampaignID domain.ID       `json:"campaignId,omitempty"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

type publishResult struct {
	Room      string `json:"room"`
	Event     string `json:"event"`
	Delivered int    `json:"delivered"`
}

// normalize resolves the target room and validates the event name.
func (r publishRequest) normalize() (publishRequest, error) {
	r.Room = strings.TrimSpace(r.Room)
	r.Event = strings.TrimSpace(r.Event)
	if r.Room == "" && !r.CampaignID.IsZero() {
		r.Room = subscription.RoomName(r.CampaignID)
	}
	if r.Room == "" {
		return r, apperrors.New(apperrors.CodeInvalidArgument, "room or campaignId is required")
	}
	if len(r.Room) > maxRoomNameBytes {
		return r, apperrors.New(apperrors.CodeInvalidArgument, "room name is too long")
	}
	switch r.Event {
	case "":
		return r, apperrors.New(apperrors.CodeInvalidArgument, "event is required")
	case subscription.JoinRoomEvent, subscription.LeaveRoomEvent, roomJoinedFrame, roomLeftFrame, errorFrame:
		return r, apperrors.New(apperrors.CodeInvalidArgument, "event name is reserved")
	}
	if len(r.Payload) == 0 {
		r.Payload = json.RawMessage("null")
	}
	if len(r.Payload) > maxFramePayloadBytes {
		return r, apperrors.New(apperrors.CodeInvalidArgument, "payload too large")
	}
	return r, nil
}

// NewServer builds a configured relay server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	hub := newRoomHub(NewMetrics(config.Registerer))
	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           newHandler(hub, config.Gatherer),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		hub: hub,
	}

	if strings.TrimSpace(config.AMQP.URL) != "" {
		bridge, err := newAMQPBridge(config.AMQP, hub)
		if err != nil {
			return nil, fmt.Errorf("configure amqp bridge: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			bridge.run(ctx)
		}()
		server.bridgeStop = cancel
		server.bridgeDone = done
	}
	return server, nil
}

// Run creates and serves a relay until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init relay server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve relay: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("relay server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("relay listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close stops the broker bridge.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.bridgeStop != nil {
		s.bridgeStop()
	}
	if s.bridgeDone != nil {
		<-s.bridgeDone
	}
}
