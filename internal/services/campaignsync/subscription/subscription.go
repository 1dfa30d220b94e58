// Package subscription binds a campaign view to a realtime room.
//
// A Subscription is a scoped handle: Acquire registers handlers and joins the
// room, Release removes every handler before leaving. A Manager re-acquires
// the handle whenever the campaign or the connection state changes.
package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
)

const (
	// JoinRoomEvent asks the transport to add this connection to a room.
	JoinRoomEvent = "join-room"
	// LeaveRoomEvent asks the transport to drop this connection from a room.
	LeaveRoomEvent = "leave-room"

	roomPrefix = "campaign:"
)

// RoomName returns the realtime room carrying events for a campaign.
func RoomName(campaignID domain.ID) string {
	return roomPrefix + campaignID.String()
}

// Transport is the realtime connection a subscription rides on. Handlers
// registered with On stay registered until the returned function runs.
type Transport interface {
	Connected() bool
	Emit(event string, payload any) error
	On(event string, handler func(json.RawMessage)) (off func())
}

// Handler handles one named realtime event.
type Handler struct {
	Event  string
	Handle func(json.RawMessage)
}

// Subscription is one join of one room.
type Subscription struct {
	transport  Transport
	campaignID domain.ID
	room       string

	mu       sync.Mutex
	offs     []func()
	released bool
}

// Acquire registers handlers and joins the campaign room. It requires a
// connected transport and a campaign id. When the join fails the handlers
// registered so far are removed before the error returns.
func Acquire(transport Transport, campaignID domain.ID, handlers []Handler) (*Subscription, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if campaignID.IsZero() {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "campaign id is required")
	}
	if !transport.Connected() {
		return nil, apperrors.WithMetadata(apperrors.CodeNotConnected, "realtime transport is not connected", map[string]string{
			"campaign_id": campaignID.String(),
		})
	}

	sub := &Subscription{
		transport:  transport,
		campaignID: campaignID,
		room:       RoomName(campaignID),
	}
	for _, handler := range handlers {
		if handler.Event == "" || handler.Handle == nil {
			continue
		}
		sub.offs = append(sub.offs, transport.On(handler.Event, handler.Handle))
	}

	if err := transport.Emit(JoinRoomEvent, sub.room); err != nil {
		sub.removeHandlers()
		return nil, apperrors.WrapWithMetadata(apperrors.CodeUnavailable, "join room", map[string]string{
			"room": sub.room,
		}, err)
	}
	return sub, nil
}

// CampaignID returns the campaign this subscription serves.
func (s *Subscription) CampaignID() domain.ID {
	return s.campaignID
}

// Room returns the joined room name.
func (s *Subscription) Room() string {
	return s.room
}

// Release removes every handler and then leaves the room when the transport
// is still connected. Later calls do nothing.
func (s *Subscription) Release() error {
	if s == nil {
		return nil
	}
	if !s.removeHandlers() {
		return nil
	}
	if !s.transport.Connected() {
		return nil
	}
	if err := s.transport.Emit(LeaveRoomEvent, s.room); err != nil {
		return fmt.Errorf("leave room %s: %w", s.room, err)
	}
	return nil
}

func (s *Subscription) removeHandlers() bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false
	}
	s.released = true
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for _, off := range offs {
		if off != nil {
			off()
		}
	}
	return true
}
