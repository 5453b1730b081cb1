package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the per-instance Prometheus registry and collectors. Each
// instance in a cluster gets its own registry so gauges don't collide.
type Metrics struct {
	registry *prometheus.Registry

	federationRequests *prometheus.CounterVec
}

func newMetrics(state *State) *Metrics {
	registry := prometheus.NewRegistry()

	clientConns := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "runelink_client_connections",
		Help:        "Live client websocket connections.",
		ConstLabels: prometheus.Labels{"host": state.Config.LocalHost()},
	}, func() float64 { return float64(state.ClientWs.ConnectionCount()) })

	federationConns := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "runelink_federation_connections",
		Help:        "Live federation websocket connections.",
		ConstLabels: prometheus.Labels{"host": state.Config.LocalHost()},
	}, func() float64 { return float64(state.Federation.ConnectionCount()) })

	pendingRequests := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "runelink_federation_pending_requests",
		Help:        "Outstanding federation RPCs awaiting replies.",
		ConstLabels: prometheus.Labels{"host": state.Config.LocalHost()},
	}, func() float64 { return float64(state.Federation.PendingCount()) })

	federationRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "runelink_federation_requests_total",
		Help:        "Federation RPCs by outcome.",
		ConstLabels: prometheus.Labels{"host": state.Config.LocalHost()},
	}, []string{"outcome"})

	registry.MustRegister(clientConns, federationConns, pendingRequests, federationRequests)

	return &Metrics{
		registry:           registry,
		federationRequests: federationRequests,
	}
}

// ObserveFederationRequest counts one federation RPC outcome.
func (m *Metrics) ObserveFederationRequest(outcome string) {
	m.federationRequests.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
