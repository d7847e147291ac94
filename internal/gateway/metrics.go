package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway-level counters using atomic operations and
// exports them through a dedicated Prometheus registry. The dedicated
// registry keeps several gateways in one process (tests, embedding)
// from fighting over the global collector namespace.
type Metrics struct {
	registry *prometheus.Registry
	requests atomic.Int64
	episodes atomic.Int64
	queries  atomic.Int64
}

// NewMetrics builds the counter set. tenantCount feeds the
// agent_mem_tenants_active gauge on every scrape.
func NewMetrics(tenantCount func() int) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	factory := promauto.With(m.registry)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "agent_mem_requests_total",
		Help: "Total authenticated API requests",
	}, func() float64 { return float64(m.requests.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "agent_mem_store_episodes_total",
		Help: "Total episodes stored",
	}, func() float64 { return float64(m.episodes.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "agent_mem_query_total",
		Help: "Total similarity queries",
	}, func() float64 { return float64(m.queries.Load()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agent_mem_tenants_active",
		Help: "Active tenant count",
	}, func() float64 { return float64(tenantCount()) })

	return m
}

// RecordRequest records one authenticated API request.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordEpisodes records n episodes accepted by a store endpoint.
func (m *Metrics) RecordEpisodes(n int) {
	m.episodes.Add(int64(n))
}

// RecordQuery records one similarity query.
func (m *Metrics) RecordQuery() {
	m.queries.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests: m.requests.Load(),
		Episodes: m.episodes.Load(),
		Queries:  m.queries.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests int64 `json:"requests"`
	Episodes int64 `json:"episodes_stored"`
	Queries  int64 `json:"queries"`
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
