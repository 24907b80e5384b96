package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reservationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_reservations_created_total",
			Help: "Reservations created, by resulting status (confirmed or pending)",
		},
		[]string{"status"},
	)

	slotConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_slot_conflicts_total",
			Help: "Unique index violations caught at commit time",
		},
		[]string{"operation"},
	)

	cancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_cancellations_total",
			Help: "Reservations cancelled",
		},
	)

	promotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_waitlist_promotions_total",
			Help: "Waitlist promotion attempts by result (promoted, no_table, empty, error)",
		},
		[]string{"result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_operation_duration_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)

	idempotencyHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_idempotency_hits_total",
			Help: "Create requests answered from a stored idempotency key",
		},
	)
)

// RecordReservationCreated records a committed reservation
func RecordReservationCreated(status string) {
	reservationsCreatedTotal.WithLabelValues(status).Inc()
}

// RecordSlotConflict records a unique index violation for an operation
func RecordSlotConflict(operation string) {
	slotConflictsTotal.WithLabelValues(operation).Inc()
}

func RecordCancellation() {
	cancellationsTotal.Inc()
}

// RecordPromotion records the outcome of a waitlist promotion attempt
func RecordPromotion(result string) {
	promotionsTotal.WithLabelValues(result).Inc()
}

// ObserveOperation records how long an engine operation took
func ObserveOperation(operation string, start time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordIdempotencyHit() {
	idempotencyHitsTotal.Inc()
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
