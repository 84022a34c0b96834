package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnatolyKozmin/Shend/internal/models"
)

// Claim and cancellation outcome labels.
const (
	OutcomeConfirmed     = "confirmed"
	OutcomeSlotTaken     = "slot_taken"
	OutcomeAlreadyBooked = "already_booked"
	OutcomeCancelled     = "cancelled"
	OutcomeNotAllowed    = "not_allowed"
	OutcomeError         = "error"
	OutcomeDelivered     = "delivered"
	OutcomeFailed        = "failed"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are
// safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	claims          *prometheus.CounterVec
	cancellations   *prometheus.CounterVec
	reconcile       *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_claims_total",
		Help: "Slot claim attempts by outcome",
	}, []string{"track", "outcome"})

	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cancellations_total",
		Help: "Cancellation attempts by outcome",
	}, []string{"track", "outcome"})

	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_slots_total",
		Help: "Slots processed by availability reconciliation, by result",
	}, []string{"track", "result"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "availability_sync_duration_seconds",
		Help:    "Duration of import and reconcile passes",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"track", "status"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_event_deliveries_total",
		Help: "Booking event deliveries per sink and outcome",
	}, []string{"sink", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, claims, cancellations, reconcile, syncDuration, deliveries, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		claims:          claims,
		cancellations:   cancellations,
		reconcile:       reconcile,
		syncDuration:    syncDuration,
		deliveries:      deliveries,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveClaim counts a claim attempt.
func (m *MetricsService) ObserveClaim(track, outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(track, outcome).Inc()
}

// ObserveCancellation counts a cancellation attempt.
func (m *MetricsService) ObserveCancellation(track, outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(track, outcome).Inc()
}

// ObserveReconcile adds a reconciliation report to the slot counters.
func (m *MetricsService) ObserveReconcile(report *models.ReconcileReport) {
	if m == nil || report == nil {
		return
	}
	for result, n := range map[string]int{
		"added":                       report.Added,
		"updated":                     report.Updated,
		"unchanged":                   report.Unchanged,
		"skipped_occupied":            report.SkippedOccupied,
		"skipped_unknown_interviewer": report.SkippedUnknownInterviewer,
		"deleted_stale":               report.DeletedStale,
		"errors":                      report.Errors,
	} {
		if n > 0 {
			m.reconcile.WithLabelValues(report.Track, result).Add(float64(n))
		}
	}
}

// ObserveSync records the duration of a sync pass.
func (m *MetricsService) ObserveSync(track string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.syncDuration.WithLabelValues(track, status).Observe(duration.Seconds())
}

// ObserveDelivery counts a sink delivery outcome.
func (m *MetricsService) ObserveDelivery(sink, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(sink, outcome).Inc()
}
