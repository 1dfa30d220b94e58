package subscription

import (
	"log/slog"
	"sync"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StateNotifier reports connection changes of a Transport.
type StateNotifier interface {
	OnStateChange(handler func(connected bool)) (off func())
}

// Metrics counts room subscriptions.
type Metrics struct {
	active prometheus.Gauge
	joins  prometheus.Counter
}

// NewMetrics registers subscription metrics on reg. A nil reg yields
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campaignsync_room_subscriptions",
			Help: "Number of campaign rooms currently joined",
		}),
		joins: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaignsync_room_joins_total",
			Help: "Total number of successful campaign room joins",
		}),
	}
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// OnRejoin runs after a connection change joined the room again. Events
	// pushed while disconnected were missed, so callers re-fetch. It runs on
	// the transport's notification goroutine without the manager lock held.
	OnRejoin func(campaignID domain.ID)
}

// Manager keeps exactly one subscription for the desired campaign while the
// transport is connected. It never closes the transport.
type Manager struct {
	transport Transport
	handlers  []Handler
	logger    *slog.Logger
	metrics   *Metrics
	onRejoin  func(domain.ID)

	mu         sync.Mutex
	campaignID domain.ID
	current    *Subscription
	offState   func()
	closed     bool
}

// NewManager creates a manager with no campaign. When transport also
// implements StateNotifier the manager follows reconnects.
func NewManager(transport Transport, handlers []Handler, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	m := &Manager{
		transport: transport,
		handlers:  handlers,
		logger:    logger,
		metrics:   metrics,
		onRejoin:  opts.OnRejoin,
	}
	if notifier, ok := transport.(StateNotifier); ok {
		m.offState = notifier.OnStateChange(m.connectionChanged)
	}
	return m
}

// SetCampaign leaves the current room, if any, and joins the room for id.
// An empty id only leaves.
func (m *Manager) SetCampaign(id domain.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if m.current != nil && domain.SameID(m.current.CampaignID(), id) {
		return nil
	}
	m.releaseLocked()
	m.campaignID = id
	if id.IsZero() || !m.transport.Connected() {
		return nil
	}
	return m.acquireLocked()
}

// Room returns the joined room, or "" when no room is joined.
func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.Room()
}

// Close releases the subscription and stops following the transport.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.releaseLocked()
	offState := m.offState
	m.offState = nil
	m.mu.Unlock()

	if offState != nil {
		offState()
	}
}

func (m *Manager) connectionChanged(connected bool) {
	campaignID, rejoined := m.followConnection(connected)
	if rejoined && m.onRejoin != nil {
		m.onRejoin(campaignID)
	}
}

// followConnection releases on disconnect and re-acquires on connect. It
// reports the campaign whose room was joined again.
func (m *Manager) followConnection(connected bool) (domain.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false
	}
	if !connected {
		m.releaseLocked()
		return "", false
	}
	if m.current != nil || m.campaignID.IsZero() {
		return "", false
	}
	if err := m.acquireLocked(); err != nil {
		m.logger.Warn("rejoin campaign room", "campaign_id", m.campaignID.String(), "error", err)
		return "", false
	}
	return m.campaignID, true
}

func (m *Manager) acquireLocked() error {
	sub, err := Acquire(m.transport, m.campaignID, m.handlers)
	if err != nil {
		return err
	}
	m.current = sub
	m.metrics.active.Inc()
	m.metrics.joins.Inc()
	m.logger.Debug("joined campaign room", "room", sub.Room())
	return nil
}

func (m *Manager) releaseLocked() {
	if m.current == nil {
		return
	}
	sub := m.current
	m.current = nil
	m.metrics.active.Dec()
	if err := sub.Release(); err != nil {
		m.logger.Warn("leave campaign room", "room", sub.Room(), "error", err)
		return
	}
	m.logger.Debug("left campaign room", "room", sub.Room())
}
