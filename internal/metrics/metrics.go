package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gibster",
			Name:      "api_requests_total",
			Help:      "Remote API requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	sessionExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gibster",
			Name:      "session_expired_total",
			Help:      "Sessions terminated by an unauthorized response.",
		},
	)

	syncTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gibster",
			Name:      "sync_transitions_total",
			Help:      "Sync orchestrator state transitions by target state.",
		},
		[]string{"state"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gibster",
			Name:      "sync_poll_attempts",
			Help:      "Status polls spent per finished sync run.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(apiRequests, sessionExpired, syncTransitions, pollAttempts)
	})
}

// IncAPIRequest counts a remote call. code 0 means no response was received.
func IncAPIRequest(endpoint string, code int) {
	label := "network_error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	apiRequests.WithLabelValues(endpoint, label).Inc()
}

// IncSessionExpired counts a forced logout.
func IncSessionExpired() {
	sessionExpired.Inc()
}

// IncSyncTransition counts an orchestrator transition into state.
func IncSyncTransition(state string) {
	syncTransitions.WithLabelValues(state).Inc()
}

// ObservePollAttempts records how many polls a finished run used.
func ObservePollAttempts(n int) {
	pollAttempts.Observe(float64(n))
}
