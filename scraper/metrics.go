package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl-and-diff cycle.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	PagesTotal      prometheus.Counter
	ItemsTotal      prometheus.Counter
	ChangesTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors on a dedicated
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwatch_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookwatch_request_duration_seconds",
			Help:    "HTTP request latency, retries included.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookwatch_retries_total",
			Help: "Total retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwatch_errors_total",
			Help: "Total fetch and parse errors by type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookwatch_pages_total",
			Help: "Total listing pages traversed.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookwatch_items_total",
			Help: "Total detail records extracted.",
		},
	)
	changes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwatch_changes_total",
			Help: "Classification outcomes per crawl cycle.",
		},
		[]string{"event"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, pages, items, changes)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		PagesTotal:      pages,
		ItemsTotal:      items,
		ChangesTotal:    changes,
	}
}

// IncRequest increments the request counter for a phase label.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records one request's wall time.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPages increments the listing page counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncItems increments the extracted item counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsTotal.Inc()
}

// IncChange increments the classification counter for an outcome.
func (m *Metrics) IncChange(event string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(event).Inc()
}
