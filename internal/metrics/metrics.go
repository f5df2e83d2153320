// Package metrics holds the Prometheus collectors of the reservation and
// scheduling core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reservation line outcomes.
const (
	LineFull    = "full"
	LinePartial = "partial"
	LineFailed  = "failed"
)

// Conflict check results.
const (
	CheckFree     = "free"
	CheckConflict = "conflict"
	CheckError    = "error"
)

// Metrics is a private registry with the collectors used across the core.
type Metrics struct {
	reg *prometheus.Registry

	ReservationLines   *prometheus.CounterVec
	ReservedUnits      *prometheus.CounterVec
	ReservationRetries prometheus.Counter
	ReleasedUnits      prometheus.Counter
	ConflictChecks     *prometheus.CounterVec
	Suggestions        prometheus.Histogram
	Notifications      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates a registry with Go runtime collectors and the core's own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ReservationLines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oprema_reservation_lines_total",
			Help: "Reservation request lines processed, by outcome.",
		}, []string{"outcome"}),
		ReservedUnits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oprema_reserved_units_total",
			Help: "Units claimed by the reservation ledger, by item kind.",
		}, []string{"kind"}),
		ReservationRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "oprema_reservation_retries_total",
			Help: "Reservation lines retried after losing a claim race.",
		}),
		ReleasedUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "oprema_released_units_total",
			Help: "Asset claims and consumable claims released.",
		}),
		ConflictChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oprema_conflict_checks_total",
			Help: "Venue availability checks, by result.",
		}, []string{"result"}),
		Suggestions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oprema_suggestion_candidates",
			Help:    "Number of reschedule candidates returned per suggestion.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oprema_notifications_total",
			Help: "Fulfillment notifications handed to the notifier, by result.",
		}, []string{"result"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oprema_http_request_duration_seconds",
			Help:    "HTTP request latency, by route pattern and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pattern", "code"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
