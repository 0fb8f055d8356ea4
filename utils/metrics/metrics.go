package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric the process exports
const Namespace = "flasharb"

// NewRegistry returns a registry with the Go and process collectors attached
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return registry
}

// EngineMetrics tracks arbitrage executions.
// A nil Registerer yields working but unregistered collectors.
type EngineMetrics struct {
	Attempts      prometheus.Counter
	Settled       prometheus.Counter
	Reverts       *prometheus.CounterVec
	Profit        prometheus.Counter
	ProfitBps     prometheus.Histogram
	ExecutionTime prometheus.Histogram
	InFlight      prometheus.Gauge
}

func NewEngineMetrics(reg prometheus.Registerer, namespace string) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "attempts_total",
			Help:      "Total number of executeArbitrage calls",
		}),
		Settled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "settled_total",
			Help:      "Total number of settled arbitrages",
		}),
		Reverts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reverts_total",
			Help:      "Reverted arbitrages by reason and the state they reverted from",
		}, []string{"reason", "state"}),
		Profit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "profit_wei_total",
			Help:      "Realized profit in base units of the borrowed token",
		}),
		ProfitBps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "profit_bps",
			Help:      "Realized profit in basis points of the principal",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		ExecutionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_seconds",
			Help:      "Wall time of one executeArbitrage call",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "in_flight",
			Help:      "1 while an execution holds the engine",
		}),
	}
}

// LoanMetrics tracks flash loan gateways
type LoanMetrics struct {
	Loans      *prometheus.CounterVec
	Volume     *prometheus.CounterVec
	Premiums   *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Selections *prometheus.CounterVec
}

func NewLoanMetrics(reg prometheus.Registerer, namespace string) *LoanMetrics {
	factory := promauto.With(reg)
	return &LoanMetrics{
		Loans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "loans_total",
			Help:      "Repaid flash loans by gateway",
		}, []string{"gateway"}),
		Volume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "volume_wei_total",
			Help:      "Borrowed principal by gateway",
		}, []string{"gateway"}),
		Premiums: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "premiums_wei_total",
			Help:      "Premiums collected by gateway",
		}, []string{"gateway"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "errors_total",
			Help:      "Failed flash loans by gateway and reason",
		}, []string{"gateway", "reason"}),
		Selections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "provider_selections_total",
			Help:      "Number of times each gateway was selected",
		}, []string{"gateway"}),
	}
}

// SwapMetrics tracks the swap adapter
type SwapMetrics struct {
	Swaps    *prometheus.CounterVec
	Failures *prometheus.CounterVec
}

func NewSwapMetrics(reg prometheus.Registerer, namespace string) *SwapMetrics {
	factory := promauto.With(reg)
	return &SwapMetrics{
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "swaps_total",
			Help:      "Successful swaps by exchange",
		}, []string{"dex"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "swap_failures_total",
			Help:      "Failed swaps by exchange",
		}, []string{"dex"}),
	}
}
