package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RPCCallsTotal  *prometheus.CounterVec
	RPCErrorsTotal *prometheus.CounterVec
	RPCLatency     *prometheus.HistogramVec
	RangesTotal    *prometheus.CounterVec
	LogsTotal      *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	ResolvedBlock  *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RPCCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fillscope_rpc_calls_total",
				Help: "Total number of JSON-RPC attempts",
			},
			[]string{"method"},
		),
		RPCErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fillscope_rpc_errors_total",
				Help: "Total number of failed JSON-RPC attempts",
			},
			[]string{"method", "kind"},
		),
		RPCLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fillscope_rpc_latency_seconds",
				Help:    "JSON-RPC call latency including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fillscope_ranges_total",
				Help: "Planned sub-ranges by outcome",
			},
			[]string{"status"},
		),
		LogsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fillscope_logs_total",
				Help: "Fetched logs by outcome",
			},
			[]string{"status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fillscope_block_cache_lookups_total",
				Help: "Block timestamp cache lookups",
			},
			[]string{"result"},
		),
		ResolvedBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fillscope_resolved_block",
				Help: "Block numbers resolved for the window boundaries",
			},
			[]string{"boundary"},
		),
	}
	registry.MustRegister(
		m.RPCCallsTotal,
		m.RPCErrorsTotal,
		m.RPCLatency,
		m.RangesTotal,
		m.LogsTotal,
		m.CacheLookups,
		m.ResolvedBlock,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RPCAttempt(method string) {
	if m == nil {
		return
	}
	m.RPCCallsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) RPCError(method, kind string) {
	if m == nil {
		return
	}
	m.RPCErrorsTotal.WithLabelValues(method, kind).Inc()
}

func (m *Metrics) RPCDuration(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Range(status string) {
	if m == nil {
		return
	}
	m.RangesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Logs(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LogsTotal.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Resolved(boundary string, block uint64) {
	if m == nil {
		return
	}
	m.ResolvedBlock.WithLabelValues(boundary).Set(float64(block))
}
