package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketMetrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	upgrades prometheus.Counter
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to record
// marketplace operation activity.
func MarketMetrics() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "gateway",
				Name:      "operations_total",
				Help:      "Total marketplace operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "gateway",
				Name:      "failures_total",
				Help:      "Total failed marketplace operations segmented by operation.",
			}, []string{"operation"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftmarket",
				Subsystem: "gateway",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for marketplace operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			upgrades: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "gateway",
				Name:      "engine_upgrades_total",
				Help:      "Count of settlement engine upgrades applied through the gateway.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.requests,
			marketRegistry.failures,
			marketRegistry.latency,
			marketRegistry.upgrades,
		)
	})
	return marketRegistry
}

// ObserveOperation records one marketplace operation with its outcome and
// duration.
func (m *marketMetrics) ObserveOperation(operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(operation).Inc()
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveUpgrade records a successful engine upgrade.
func (m *marketMetrics) ObserveUpgrade() {
	if m == nil {
		return
	}
	m.upgrades.Inc()
}
