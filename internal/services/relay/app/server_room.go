package server

import (
	"encoding/json"
	"io"
	"slices"
	"sync"
	"time"
)

// wsWriteTimeout bounds one frame write so a stalled client cannot hold up a
// broadcast.
const wsWriteTimeout = 5 * time.Second

type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

type wsPeer struct {
	mu      sync.Mutex
	conn    io.Writer
	encoder *json.Encoder
	timeout time.Duration
}

func newWSPeer(conn io.Writer) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn), timeout: wsWriteTimeout}
}

// writeFrame encodes frame under the write deadline. A failed write closes
// the connection, which ends its read loop and drops it from every room.
func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline, hasDeadline := p.conn.(deadlineWriter)
	if hasDeadline {
		_ = deadline.SetWriteDeadline(time.Now().Add(p.timeout))
	}
	err := p.encoder.Encode(frame)
	if err != nil {
		if closer, ok := p.conn.(io.Closer); ok {
			_ = closer.Close()
		}
		return err
	}
	if hasDeadline {
		_ = deadline.SetWriteDeadline(time.Time{})
	}
	return nil
}

// wsSession tracks the rooms one connection has joined.
type wsSession struct {
	id   string
	peer *wsPeer

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newWSSession(id string, peer *wsPeer) *wsSession {
	return &wsSession{
		id:    id,
		peer:  peer,
		rooms: make(map[string]struct{}),
	}
}

func (s *wsSession) addRoom(name string) {
	s.mu.Lock()
	s.rooms[name] = struct{}{}
	s.mu.Unlock()
}

func (s *wsSession) removeRoom(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[name]; !ok {
		return false
	}
	delete(s.rooms, name)
	return true
}

func (s *wsSession) joinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// roomHub owns room membership. Rooms exist while they have subscribers.
type roomHub struct {
	mu      sync.Mutex
	rooms   map[string]map[*wsPeer]struct{}
	metrics *Metrics
}

func newRoomHub(metrics *Metrics) *roomHub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &roomHub{
		rooms:   make(map[string]map[*wsPeer]struct{}),
		metrics: metrics,
	}
}

// join adds peer to room and returns the room's subscriber count.
func (h *roomHub) join(room string, peer *wsPeer) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.rooms[room]
	if !ok {
		subscribers = make(map[*wsPeer]struct{})
		h.rooms[room] = subscribers
	}
	subscribers[peer] = struct{}{}
	h.metrics.rooms.Set(float64(len(h.rooms)))
	return len(subscribers)
}

// leave removes peer from room and reports whether the room emptied.
func (h *roomHub) leave(room string, peer *wsPeer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.rooms[room]
	if !ok {
		return false
	}
	delete(subscribers, peer)
	empty := len(subscribers) == 0
	if empty {
		delete(h.rooms, room)
	}
	h.metrics.rooms.Set(float64(len(h.rooms)))
	return empty
}

func (h *roomHub) subscribers(room string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make([]*wsPeer, 0, len(h.rooms[room]))
	for peer := range h.rooms[room] {
		peers = append(peers, peer)
	}
	return peers
}

// broadcast writes frame to every subscriber of room and returns how many
// writes succeeded.
func (h *roomHub) broadcast(room string, frame wsFrame) int {
	delivered := 0
	for _, peer := range h.subscribers(room) {
		if err := peer.writeFrame(frame); err != nil {
			continue
		}
		delivered++
	}
	h.metrics.deliveries.Add(float64(delivered))
	return delivered
}

func (h *roomHub) roomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
