package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	swapMetricsOnce sync.Once
	swapRegistry    *SwapMetrics
)

// SwapMetrics captures the service-level metrics for the swap daemon: quote
// and swap traffic, rate update outcomes, and the redemption index each pool
// is pricing at.
type SwapMetrics struct {
	quotes      *prometheus.CounterVec
	swaps       *prometheus.CounterVec
	rateUpdates *prometheus.CounterVec
	index       *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// Swap returns the lazily-initialised singleton metrics registry for the
// swap daemon.
func Swap() *SwapMetrics {
	swapMetricsOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "psm",
				Subsystem: "swap",
				Name:      "quotes_total",
				Help:      "Count of price quotes segmented by trade direction and outcome.",
			}, []string{"direction", "outcome"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "psm",
				Subsystem: "swap",
				Name:      "swaps_total",
				Help:      "Count of executed swaps segmented by trade direction and outcome.",
			}, []string{"direction", "outcome"}),
			rateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "psm",
				Subsystem: "swap",
				Name:      "rate_updates_total",
				Help:      "Count of submitted rate updates segmented by outcome.",
			}, []string{"outcome"}),
			index: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "psm",
				Subsystem: "swap",
				Name:      "redemption_index",
				Help:      "Current ray-scaled redemption index per pool, as a float.",
			}, []string{"pool"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "psm",
				Subsystem: "swap",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for swap service operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			swapRegistry.quotes,
			swapRegistry.swaps,
			swapRegistry.rateUpdates,
			swapRegistry.index,
			swapRegistry.latency,
		)
	})
	return swapRegistry
}

// ObserveQuote records a quote request outcome.
func (m *SwapMetrics) ObserveQuote(direction, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(normalise(direction), normalise(outcome)).Inc()
	m.latency.WithLabelValues("quote").Observe(duration.Seconds())
}

// ObserveSwap records an executed swap outcome.
func (m *SwapMetrics) ObserveSwap(direction, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(normalise(direction), normalise(outcome)).Inc()
	m.latency.WithLabelValues("swap").Observe(duration.Seconds())
}

// ObserveRateUpdate records a rate update submission outcome.
func (m *SwapMetrics) ObserveRateUpdate(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rateUpdates.WithLabelValues(normalise(outcome)).Inc()
	m.latency.WithLabelValues("rate_update").Observe(duration.Seconds())
}

// SetRedemptionIndex publishes the pool's current index. The ray-scaled
// integer is reduced to a float gauge; precision loss is acceptable for
// dashboards.
func (m *SwapMetrics) SetRedemptionIndex(pool string, index *big.Int, ray *big.Int) {
	if m == nil || index == nil || ray == nil || ray.Sign() == 0 {
		return
	}
	value, _ := new(big.Rat).SetFrac(index, ray).Float64()
	m.index.WithLabelValues(normalise(pool)).Set(value)
}

func normalise(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "unknown"
	}
	return label
}
