package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Purchase outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeSoldOut       = "sold_out"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeConflict      = "conflict"
	OutcomeInconsistency = "inconsistency"
	OutcomeError         = "error"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	purchases       *prometheus.CounterVec
	casRetries      prometheus.Counter
	ticketsIssued   prometheus.Counter
	ticketsExpired  prometheus.Counter
	checkIns        *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Error responses by route and error code",
		}, []string{"route", "method", "code"}),
		purchases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_purchases_total",
			Help: "Purchase attempts by outcome and sold-out reason",
		}, []string{"outcome", "reason"}),
		casRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticket_inventory_cas_retries_total",
			Help: "Inventory commits lost to a concurrent writer and retried",
		}),
		ticketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued by successful purchases",
		}),
		ticketsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tickets_expired_total",
			Help: "Tickets marked expired by the sweep",
		}),
		checkIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_check_ins_total",
			Help: "Check-in attempts by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordPurchase counts a finished purchase call. reason is empty unless sold out.
func (m *Metrics) RecordPurchase(outcome, reason string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) RecordCASRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *Metrics) RecordTicketsIssued(n int) {
	if m == nil {
		return
	}
	m.ticketsIssued.Add(float64(n))
}

func (m *Metrics) RecordTicketsExpired(n int) {
	if m == nil {
		return
	}
	m.ticketsExpired.Add(float64(n))
}

// RecordCheckIn counts gate scans; result is "admitted", "rejected" or "unknown".
func (m *Metrics) RecordCheckIn(result string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(result).Inc()
}
