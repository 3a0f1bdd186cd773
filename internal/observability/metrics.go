package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes.
const (
	SearchOK    = "ok"
	SearchStale = "stale"
	SearchEmpty = "empty"
)

// Catalog load origins.
const (
	OriginMemory  = "memory"
	OriginDisk    = "disk"
	OriginNetwork = "network"
	OriginFile    = "file"
)

// Metrics holds the Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SearchesTotal   *prometheus.CounterVec
	SearchLatency   prometheus.Histogram
	ResolvesTotal   *prometheus.CounterVec
	SourcesLoaded   prometheus.Gauge
	CatalogLoads    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexis_http_requests_total",
				Help: "HTTP requests by method and status class.",
			},
			[]string{"method", "class"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexis_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexis_searches_total",
				Help: "Searches by outcome (ok, stale, empty).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexis_search_latency_seconds",
				Help:    "Search fan-out latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexis_resolves_total",
				Help: "Entry resolutions by path (id, term) and result (hit, miss).",
			},
			[]string{"path", "result"},
		),
		SourcesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexis_sources_loaded",
				Help: "Dictionaries currently open for search.",
			},
		),
		CatalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexis_catalog_loads_total",
				Help: "Catalog loads by origin (memory, disk, network, file).",
			},
			[]string{"origin"},
		),
	}
	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.SearchesTotal,
		m.SearchLatency,
		m.ResolvesTotal,
		m.SourcesLoaded,
		m.CatalogLoads,
	)
	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveResolve(path string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ResolvesTotal.WithLabelValues(path, result).Inc()
}

func (m *Metrics) SetSources(n int) {
	if m == nil {
		return
	}
	m.SourcesLoaded.Set(float64(n))
}

func (m *Metrics) ObserveCatalogLoad(origin string) {
	if m == nil {
		return
	}
	m.CatalogLoads.WithLabelValues(origin).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
