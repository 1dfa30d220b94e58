package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the view's Prometheus collectors.
type metrics struct {
	events      *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	donations   prometheus.Gauge
	mounts      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_events_total",
			Help: "Realtime events handled by the campaign view, by event and outcome",
		}, []string{"event", "outcome"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_fetch_errors_total",
			Help: "Failed REST fetches, by resource",
		}, []string{"resource"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignsync_mutations_total",
			Help: "Mutations issued by the campaign view, by mutation and result",
		}, []string{"mutation", "result"}),
		donations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campaignsync_visible_donations",
			Help: "Visible donations in the current campaign view",
		}),
		mounts: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaignsync_view_mounts_total",
			Help: "Campaign view mounts, including navigations and reloads",
		}),
	}
}
