package storage

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvbench/workload"
)

// Metric names, shared with the Grafana dashboard generator
const (
	MetricLatency     = "kvbench_op_latency_seconds"
	MetricOps         = "kvbench_ops_total"
	MetricErrors      = "kvbench_errors_total"
	MetricThreads     = "kvbench_threads"
	MetricPhaseIOPS   = "kvbench_phase_iops"
	MetricCPU         = "kvbench_cpu_utilization"
	MetricMemory      = "kvbench_memory_utilization"
	MetricNetworkRate = "kvbench_network_bytes_per_second"
)

// phaseMetrics caches the label children of the running phase so the hot
// path never formats labels
type phaseMetrics struct {
	latency [workload.NumOpTypes]prometheus.Observer
	ok      [workload.NumOpTypes]prometheus.Counter
	failed  [workload.NumOpTypes]prometheus.Counter
	errors  [workload.NumOpTypes]prometheus.Counter
}

// PrometheusExporter publishes live per-operation metrics on its own registry
type PrometheusExporter struct {
	registry *prometheus.Registry

	latencyHistogram *prometheus.HistogramVec
	opsCounter       *prometheus.CounterVec
	errorCounter     *prometheus.CounterVec
	threadsGauge     *prometheus.GaugeVec
	iopsGauge        *prometheus.GaugeVec
	cpuGauge         prometheus.Gauge
	memoryGauge      prometheus.Gauge
	networkGauge     *prometheus.GaugeVec

	phase  atomic.Pointer[phaseMetrics]
	server *http.Server
}

// NewPrometheusExporter creates an exporter with a fresh registry
func NewPrometheusExporter() *PrometheusExporter {
	exporter := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		latencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricLatency,
				Help:    "Backend operation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(1e-6, 2, 24), // 1us to ~8s
			},
			[]string{"workload", "op"},
		),
		opsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOps,
				Help: "Total number of operations issued",
			},
			[]string{"workload", "op", "status"},
		),
		errorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricErrors,
				Help: "Total number of failed operations",
			},
			[]string{"workload", "op"},
		),
		threadsGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricThreads,
				Help: "Worker threads of the running phase",
			},
			[]string{"workload"},
		),
		iopsGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricPhaseIOPS,
				Help: "Aggregate IOPS of the last finished phase",
			},
			[]string{"workload"},
		),
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricCPU,
			Help: "Host CPU utilization percentage",
		}),
		memoryGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMemory,
			Help: "Host memory utilization percentage",
		}),
		networkGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNetworkRate,
				Help: "Host network throughput",
			},
			[]string{"direction"},
		),
	}

	exporter.registry.MustRegister(
		exporter.latencyHistogram,
		exporter.opsCounter,
		exporter.errorCounter,
		exporter.threadsGauge,
		exporter.iopsGauge,
		exporter.cpuGauge,
		exporter.memoryGauge,
		exporter.networkGauge,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	exporter.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return exporter
}

// Registry exposes the underlying registry
func (pe *PrometheusExporter) Registry() *prometheus.Registry {
	return pe.registry
}

// Handler serves the registry in the Prometheus text format
func (pe *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(pe.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until Shutdown is called. It returns
// http.ErrServerClosed after a shutdown.
func (pe *PrometheusExporter) StartServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return pe.Serve(ln)
}

// Serve serves /metrics on ln until Shutdown is called
func (pe *PrometheusExporter) Serve(ln net.Listener) error {
	return pe.server.Serve(ln)
}

// Shutdown stops the metrics server and waits for in-flight scrapes
func (pe *PrometheusExporter) Shutdown(ctx context.Context) error {
	return pe.server.Shutdown(ctx)
}

// StartPhase binds subsequent observations to a workload label
func (pe *PrometheusExporter) StartPhase(phase workload.Type, threads int) {
	name := string(phase)
	m := &phaseMetrics{}
	for i := 0; i < workload.NumOpTypes; i++ {
		op := workload.OpType(i).String()
		m.latency[i] = pe.latencyHistogram.WithLabelValues(name, op)
		m.ok[i] = pe.opsCounter.WithLabelValues(name, op, "ok")
		m.failed[i] = pe.opsCounter.WithLabelValues(name, op, "error")
		m.errors[i] = pe.errorCounter.WithLabelValues(name, op)
	}
	pe.phase.Store(m)
	pe.threadsGauge.WithLabelValues(name).Set(float64(threads))
}

// FinishPhase records the phase IOPS and zeroes its thread gauge
func (pe *PrometheusExporter) FinishPhase(phase workload.Type, iops float64) {
	pe.iopsGauge.WithLabelValues(string(phase)).Set(iops)
	pe.threadsGauge.WithLabelValues(string(phase)).Set(0)
}

// Observe records a single operation; it is a no-op before StartPhase
func (pe *PrometheusExporter) Observe(_ int, op workload.OpType, latency time.Duration, ok bool) {
	m := pe.phase.Load()
	if m == nil {
		return
	}
	m.latency[op].Observe(latency.Seconds())
	if ok {
		m.ok[op].Inc()
		return
	}
	m.failed[op].Inc()
	m.errors[op].Inc()
}

// UpdateHostStats publishes a host sample
func (pe *PrometheusExporter) UpdateHostStats(cpuPercent, memoryPercent, rxBytesPerSec, txBytesPerSec float64) {
	pe.cpuGauge.Set(cpuPercent)
	pe.memoryGauge.Set(memoryPercent)
	pe.networkGauge.WithLabelValues("rx").Set(rxBytesPerSec)
	pe.networkGauge.WithLabelValues("tx").Set(txBytesPerSec)
}
