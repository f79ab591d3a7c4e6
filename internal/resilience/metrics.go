package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState exposes the current breaker state per target (0 closed, 1 half-open, 2 open).
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state transitions per target.
	BreakerTransitions *prometheus.CounterVec
)

// MustRegisterMetrics registers the breaker collectors. Safe to call more than once.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state per target (0 closed, 1 half-open, 2 open).",
		}, []string{"target"})
		BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Count of circuit breaker state transitions per target.",
		}, []string{"target", "from", "to"})
		reg.MustRegister(BreakerState, BreakerTransitions)
	})
}

func recordState(target string, state State) {
	if BreakerState == nil {
		return
	}
	var v float64
	switch state {
	case HalfOpen:
		v = 1
	case Open:
		v = 2
	}
	BreakerState.WithLabelValues(target).Set(v)
}

func recordTransition(target string, from, to State) {
	if BreakerTransitions == nil {
		return
	}
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
}
