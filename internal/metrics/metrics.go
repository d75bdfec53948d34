package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "allocations_total",
			Help:      "Slot allocation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "reservation_transitions_total",
			Help:      "Reservation state transitions by target status.",
		},
		[]string{"target"},
	)

	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "payment_events_total",
			Help:      "Inbound payment events by outcome.",
		},
		[]string{"outcome"},
	)

	reconciliationAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "payment_reconciliation_alerts_total",
			Help:      "Payment events rejected by the lifecycle and flagged for manual reconciliation.",
		},
	)

	sweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "expiry_sweeps_total",
			Help:      "Completed expiry sweeper runs.",
		},
	)

	expired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "expired_total",
			Help:      "Rows reclaimed by the expiry sweeper.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karabook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			allocations,
			transitions,
			paymentEvents,
			reconciliationAlerts,
			sweeps,
			expired,
			httpRequests,
		)
	})
}

func IncAllocation(outcome string)   { allocations.WithLabelValues(outcome).Inc() }
func IncTransition(target string)    { transitions.WithLabelValues(target).Inc() }
func IncPaymentEvent(outcome string) { paymentEvents.WithLabelValues(outcome).Inc() }
func IncReconciliationAlert()        { reconciliationAlerts.Inc() }
func IncSweep()                      { sweeps.Inc() }
func IncExpired(kind string)         { expired.WithLabelValues(kind).Inc() }
func IncHTTP(endpoint string)        { httpRequests.WithLabelValues(endpoint).Inc() }
