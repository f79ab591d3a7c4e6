package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// AvataxCallTotal counts outbound tax service calls by operation and outcome.
	AvataxCallTotal *prometheus.CounterVec
	// AvataxCallLatency records outbound tax service call latency in milliseconds.
	AvataxCallLatency *prometheus.HistogramVec
	// TaxEstimateCacheTotal counts estimate cache lookups by result (hit/miss).
	TaxEstimateCacheTotal *prometheus.CounterVec
	// CommitTasksTotal counts asynchronous document commit task outcomes.
	CommitTasksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		AvataxCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatax_call_total",
			Help:      "Count of tax service call outcomes by operation.",
		}, []string{"op", "result"})
		AvataxCallLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "avatax_call_duration_ms",
			Help:      "Latency of tax service calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"op"})
		TaxEstimateCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_estimate_cache_total",
			Help:      "Count of tax estimate cache lookups by result.",
		}, []string{"result"})
		CommitTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_tasks_total",
			Help:      "Count of asynchronous document commit task outcomes.",
		}, []string{"result"})

		reg.MustRegister(AvataxCallTotal, AvataxCallLatency, TaxEstimateCacheTotal, CommitTasksTotal)
	})
}

// ObserveAvataxCall records one outbound call outcome when metrics are registered.
func ObserveAvataxCall(op, result string, durationMS float64) {
	if AvataxCallTotal == nil || AvataxCallLatency == nil {
		return
	}
	AvataxCallTotal.WithLabelValues(op, result).Inc()
	AvataxCallLatency.WithLabelValues(op).Observe(durationMS)
}
