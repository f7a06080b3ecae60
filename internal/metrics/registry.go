package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flightbus/internal/bus"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Work queue metrics
	workItemRuns     *prometheus.CounterVec
	workItemDuration *prometheus.HistogramVec
	workItemOverruns *prometheus.CounterVec
	workItemFaults   *prometheus.CounterVec

	// Telemetry logger metrics
	logMessages *prometheus.CounterVec
	logBytes    prometheus.Counter

	// Database metrics
	databaseOperationTotal    *prometheus.CounterVec
	databaseOperationDuration *prometheus.HistogramVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		workItemRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightbus_workitem_runs_total",
				Help: "Total number of work item runs",
			},
			[]string{"queue", "item"},
		),

		workItemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightbus_workitem_run_duration_seconds",
				Help:    "Time spent inside work item callbacks",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"queue", "item"},
		),

		workItemOverruns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightbus_workitem_overruns_total",
				Help: "Total number of work item runs that took at least one period",
			},
			[]string{"queue", "item"},
		),

		workItemFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightbus_workitem_faults_total",
				Help: "Total number of work item runs that panicked",
			},
			[]string{"queue", "item"},
		),

		logMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightbus_mlog_messages_total",
				Help: "Total number of telemetry messages by outcome",
			},
			[]string{"message", "status"}, // status: written, dropped, error
		),

		logBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flightbus_mlog_bytes_total",
				Help: "Total number of telemetry payload bytes written",
			},
		),

		databaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightbus_database_operation_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"}, // operation: param_fetch, param_save, mlog_insert
		),

		databaseOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightbus_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flightbus_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "build_time"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flightbus_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.workItemRuns,
		r.workItemDuration,
		r.workItemOverruns,
		r.workItemFaults,
		r.logMessages,
		r.logBytes,
		r.databaseOperationTotal,
		r.databaseOperationDuration,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// RegisterBus exports per-topic version and subscriber gauges, read from
// the bus at scrape time so publishing stays free of metric updates.
func (r *Registry) RegisterBus(b *bus.Registry) error {
	return r.registry.Register(newBusCollector(b))
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordWorkItemRun records one work item callback
func (r *Registry) RecordWorkItemRun(queue, item string, duration time.Duration) {
	r.workItemRuns.WithLabelValues(queue, item).Inc()
	r.workItemDuration.WithLabelValues(queue, item).Observe(duration.Seconds())
}

// ObserveOverrun implements workqueue.Observer
func (r *Registry) ObserveOverrun(queue, item string, _ time.Duration) {
	r.workItemOverruns.WithLabelValues(queue, item).Inc()
}

// ObserveFault implements workqueue.Observer
func (r *Registry) ObserveFault(queue, item string) {
	r.workItemFaults.WithLabelValues(queue, item).Inc()
}

// RecordLogMessage records the outcome of one telemetry message
func (r *Registry) RecordLogMessage(message string, size int, err error) {
	status := "written"
	if err != nil {
		status = "error"
	}

	r.logMessages.WithLabelValues(message, status).Inc()
	if err == nil {
		r.logBytes.Add(float64(size))
	}
}

// RecordLogDrop records a telemetry message dropped before reaching a sink
func (r *Registry) RecordLogDrop(message string) {
	r.logMessages.WithLabelValues(message, "dropped").Inc()
}

// RecordDatabaseOperation records a database operation
func (r *Registry) RecordDatabaseOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.databaseOperationTotal.WithLabelValues(operation, status).Inc()
	r.databaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, buildTime string) {
	r.systemInfo.WithLabelValues(version, buildTime).Set(1)
}
