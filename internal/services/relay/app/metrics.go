package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceHTTP = "http"
	sourceAMQP = "amqp"
)

// Metrics describes relay traffic.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	frames      *prometheus.CounterVec
	published   *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	deliveries  prometheus.Counter
}

// NewMetrics registers relay metrics on reg. A nil reg yields unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campaignsync_relay_connections",
			Help: "Number of open relay WebSocket connections",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campaignsync_relay_rooms",
			Help: "Number of rooms with at least one subscriber",
		}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_relay_frames_total",
			Help: "Inbound WebSocket frames by type",
		}, []string{"type"}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_relay_published_total",
			Help: "Events fanned out to rooms by source",
		}, []string{"source"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_relay_rejected_total",
			Help: "Publish requests rejected as malformed by source",
		}, []string{"source"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaignsync_relay_deliveries_total",
			Help: "Event frames written to subscribers",
		}),
	}
}
