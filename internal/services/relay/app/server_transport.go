package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// NewHandler creates relay routes backed by a fresh room hub. It is used by
// tests and by processes that embed the relay.
func NewHandler(metrics *Metrics) http.Handler {
	return newHandler(newRoomHub(metrics), nil)
}

func newHandler(hub *roomHub, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		handlePublish(w, r, hub)
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func handleWSConn(conn *websocket.Conn, hub *roomHub) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	session := newWSSession(uuid.NewString(), newWSPeer(conn))
	hub.metrics.connections.Inc()
	defer hub.metrics.connections.Dec()
	defer func() {
		for _, room := range session.joinedRooms() {
			hub.leave(room, session.peer)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", apperrors.CodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				log.Printf("relay: closing connection %s after %d decode errors", session.id, decodeErrors)
				return
			}
			// A failed decode leaves the stream position undefined.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, codeResourceExhausted, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case subscription.JoinRoomEvent:
			hub.metrics.frames.WithLabelValues(frame.Type).Inc()
			handleJoinFrame(session, hub, frame)
		case subscription.LeaveRoomEvent:
			hub.metrics.frames.WithLabelValues(frame.Type).Inc()
			handleLeaveFrame(session, hub, frame)
		default:
			hub.metrics.frames.WithLabelValues("unsupported").Inc()
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type")
		}
	}
}

func decodeRoomPayload(payload json.RawMessage) (string, bool) {
	var room string
	if err := json.Unmarshal(payload, &room); err != nil {
		return "", false
	}
	room = strings.TrimSpace(room)
	return room, room != "" && len(room) <= maxRoomNameBytes
}

func handleJoinFrame(session *wsSession, hub *roomHub, frame wsFrame) {
	room, ok := decodeRoomPayload(frame.Payload)
	if !ok {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "join payload must be a room name")
		return
	}

	session.addRoom(room)
	count := hub.join(room, session.peer)
	_ = session.peer.writeFrame(wsFrame{
		Type:      roomJoinedFrame,
		RequestID: frame.RequestID,
		Payload:   mustJSON(roomPayload{Room: room, Subscribers: count}),
	})
}

func handleLeaveFrame(session *wsSession, hub *roomHub, frame wsFrame) {
	room, ok := decodeRoomPayload(frame.Payload)
	if !ok {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "leave payload must be a room name")
		return
	}

	if session.removeRoom(room) {
		hub.leave(room, session.peer)
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      roomLeftFrame,
		RequestID: frame.RequestID,
		Payload:   mustJSON(roomPayload{Room: room}),
	})
}

func handlePublish(w http.ResponseWriter, r *http.Request, hub *roomHub) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req publishRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		hub.metrics.rejected.WithLabelValues(sourceHTTP).Inc()
		writeHTTPError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "invalid publish body")
		return
	}

	normalized, err := req.normalize()
	if err != nil {
		hub.metrics.rejected.WithLabelValues(sourceHTTP).Inc()
		writeHTTPError(w, http.StatusBadRequest, apperrors.CodeOf(err), err.Error())
		return
	}

	delivered := publish(hub, normalized, sourceHTTP)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(publishResult{Room: normalized.Room, Event: normalized.Event, Delivered: delivered})
}

// publish fans a normalized request out to its room.
func publish(hub *roomHub, req publishRequest, source string) int {
	hub.metrics.published.WithLabelValues(source).Inc()
	return hub.broadcast(req.Room, wsFrame{Type: req.Event, Payload: req.Payload})
}

func writeHTTPError(w http.ResponseWriter, status int, code apperrors.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wsError{Code: string(code), Message: message, Retryable: code.Retryable()})
}

func writeWSError(peer *wsPeer, requestID string, code apperrors.Code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      errorFrame,
		RequestID: requestID,
		Payload: mustJSON(wsError{
			Code:      string(code),
			Message:   message,
			Retryable: code.Retryable(),
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("relay: failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
