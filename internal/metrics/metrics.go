package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusrides",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campusrides",
		Name:      "bookings_created_total",
		Help:      "Bookings successfully created.",
	})

	bookingsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campusrides",
		Name:      "bookings_cancelled_total",
		Help:      "Bookings cancelled by riders or providers.",
	})

	sweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campusrides",
		Name:      "sweep_runs_total",
		Help:      "Expiration sweep executions.",
	})

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusrides",
			Name:      "sweep_transitions_total",
			Help:      "State transitions applied by the sweep.",
		},
		[]string{"kind"},
	)

	mailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusrides",
			Name:      "mails_sent_total",
			Help:      "Outbound emails by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingsCancelled,
			sweepRuns,
			sweepTransitions,
			mailsSent,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated()   { bookingsCreated.Inc() }
func IncBookingCancelled() { bookingsCancelled.Inc() }
func IncSweepRun()         { sweepRuns.Inc() }

// AddSweepTransitions records transitions by kind
// (rides_expired, bookings_completed, rides_closed).
func AddSweepTransitions(kind string, n int64) {
	if n > 0 {
		sweepTransitions.WithLabelValues(kind).Add(float64(n))
	}
}

// IncMail records an email delivery outcome (sent or failed).
func IncMail(outcome string) {
	mailsSent.WithLabelValues(outcome).Inc()
}
