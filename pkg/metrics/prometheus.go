// Package metrics provides Prometheus metrics for the roundness pipeline.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics of the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Run metrics
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runFiles      prometheus.Gauge
	runSurvivors  prometheus.Gauge
	stageDuration *prometheus.HistogramVec

	// Per-file metrics
	filesProcessed *prometheus.CounterVec
	fileFailures   *prometheus.CounterVec
	alignmentLag   *prometheus.HistogramVec
	runout         prometheus.Histogram
	formError      prometheus.Histogram
	invalidFits    prometheus.Counter

	// Queue and worker metrics
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueRejected     *prometheus.CounterVec
	workerActive      prometheus.Gauge
	workerTaskLatency *prometheus.HistogramVec

	// Repository metrics
	repositoryLatency *prometheus.HistogramVec
	repositoryRuns    prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process metrics
	memoryBytes prometheus.Gauge
	goroutines  prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "roundness",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(m.counterOpts("runs_total", "Total number of pipeline runs by outcome"), []string{"outcome"})
	m.runDuration = auto.NewHistogram(m.histogramOpts("run_duration_seconds", "Wall time of a full pipeline run", m.histogramBuckets))
	m.runFiles = auto.NewGauge(m.gaugeOpts("run_files", "Number of input files of the last run"))
	m.runSurvivors = auto.NewGauge(m.gaugeOpts("run_survivors", "Number of files in the aligned matrix of the last run"))
	m.stageDuration = auto.NewHistogramVec(m.histogramOpts("stage_duration_seconds", "Wall time of each pipeline stage", m.histogramBuckets), []string{"stage"})

	m.filesProcessed = auto.NewCounterVec(m.counterOpts("files_processed_total", "Files completed per stage"), []string{"stage"})
	m.fileFailures = auto.NewCounterVec(m.counterOpts("file_failures_total", "Files failed per stage and error kind"), []string{"stage", "kind"})
	m.alignmentLag = auto.NewHistogramVec(m.histogramOpts("alignment_lag_samples", "Absolute alignment lag in samples",
		prometheus.ExponentialBuckets(1, 2, 14)), []string{"aligner"})
	m.runout = auto.NewHistogram(m.histogramOpts("runout", "Fitted runout per file, in radius units",
		prometheus.ExponentialBuckets(0.001, 2, 12)))
	m.formError = auto.NewHistogram(m.histogramOpts("form_error", "Peak-to-valley form error per file, in radius units",
		prometheus.ExponentialBuckets(0.001, 2, 12)))
	m.invalidFits = auto.NewCounter(m.counterOpts("invalid_fits_total", "Files whose circle fit was degenerate"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum number of queued jobs"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Total number of jobs enqueued"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("queue_rejected_total", "Jobs rejected by the queue"), []string{"reason"})
	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active", "Number of workers running a stage"))
	m.workerTaskLatency = auto.NewHistogramVec(m.histogramOpts("worker_task_duration_seconds", "Time spent on one file in one stage", m.histogramBuckets), []string{"stage"})

	m.repositoryLatency = auto.NewHistogramVec(m.histogramOpts("repository_duration_seconds", "Repository operation latency", m.histogramBuckets), []string{"operation"})
	m.repositoryRuns = auto.NewGauge(m.gaugeOpts("repository_runs", "Number of runs held by the repository"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds", "HTTP request latency", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "type"})

	m.memoryBytes = auto.NewGauge(m.gaugeOpts("process_heap_bytes", "Heap bytes in use after the last run"))
	m.goroutines = auto.NewGauge(m.gaugeOpts("process_goroutines", "Number of goroutines after the last run"))
}

// RecordRun records the outcome and duration of a pipeline run.
func RecordRun(outcome string, seconds float64, files, survivors int) {
	globalManager.runsTotal.WithLabelValues(outcome).Inc()
	globalManager.runDuration.Observe(seconds)
	globalManager.runFiles.Set(float64(files))
	globalManager.runSurvivors.Set(float64(survivors))
}

// RecordStageDuration records the wall time of one stage.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordFileProcessed counts a file that completed a stage.
func RecordFileProcessed(stage string) {
	globalManager.filesProcessed.WithLabelValues(stage).Inc()
}

// RecordFileFailure counts a file that failed a stage.
func RecordFileFailure(stage, kind string) {
	globalManager.fileFailures.WithLabelValues(stage, kind).Inc()
}

// RecordAlignmentLag records the absolute lag found by an aligner.
func RecordAlignmentLag(aligner string, lag int) {
	if lag < 0 {
		lag = -lag
	}
	globalManager.alignmentLag.WithLabelValues(aligner).Observe(float64(lag))
}

// RecordRoundness records the fitted metrics of one file.
func RecordRoundness(runout, formError float64) {
	globalManager.runout.Observe(runout)
	globalManager.formError.Observe(formError)
}

// RecordInvalidFit counts a degenerate circle fit.
func RecordInvalidFit() {
	globalManager.invalidFits.Inc()
}

// UpdateProcessStats samples heap usage and goroutine count.
func UpdateProcessStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.memoryBytes.Set(float64(ms.HeapInuse))
	globalManager.goroutines.Set(float64(runtime.NumGoroutine()))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a job the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// AddWorkerActive adjusts the number of running workers by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActive.Add(float64(delta))
}

// RecordWorkerTaskDuration records the time a worker spent on one file.
func RecordWorkerTaskDuration(stage string, seconds float64) {
	globalManager.workerTaskLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordRepositoryLatency records the latency of a repository operation.
func RecordRepositoryLatency(operation string, seconds float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(seconds)
}

// UpdateRepositoryRuns sets the number of stored runs.
func UpdateRepositoryRuns(count int) {
	globalManager.repositoryRuns.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
