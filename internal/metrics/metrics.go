package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Intake
	EventsTotal     *prometheus.CounterVec // by kind: command, callback, text
	AdmissionsTotal *prometheus.CounterVec // by result: allowed, cooldown, daily_limit

	// Jobs
	JobsTotal       *prometheus.CounterVec // by status: completed, failed, fallback
	JobDurationHist prometheus.Histogram
	QueueDepth      prometheus.Gauge
	ActiveWorkers   prometheus.Gauge

	// Extraction
	ExtractTotal        *prometheus.CounterVec // by result: success, tool_error, timeout, no_content
	ExtractDurationHist prometheus.Histogram
	ResolveTotal        *prometheus.CounterVec // by result: success, error

	// Delivery
	FilesDeliveredTotal *prometheus.CounterVec // by result: sent, fallback, error
	SentBytesHist       prometheus.Histogram

	// Resolved-URL cache
	CacheTotal *prometheus.CounterVec // by result: hit, miss, error

	// Circuit breaker
	CircuitBreakerState *prometheus.GaugeVec // by backend

	// Health checks
	HealthStatus       *prometheus.GaugeVec   // by component (1=healthy, 0=unhealthy)
	HealthChecksFailed *prometheus.CounterVec // by component

	// System metrics
	MemoryGauge     prometheus.Gauge
	GoroutinesGauge prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = &Metrics{
			EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_events_total",
				Help: "Total number of inbound transport events by kind",
			}, []string{"kind"}),
			AdmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_admissions_total",
				Help: "Total number of admission decisions by result (allowed, cooldown, daily_limit)",
			}, []string{"result"}),

			JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_jobs_total",
				Help: "Total number of download jobs by terminal status (completed, failed, fallback)",
			}, []string{"status"}),
			JobDurationHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediarelay_job_duration_seconds",
				Help:    "End-to-end job duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mediarelay_queue_depth",
				Help: "Number of jobs waiting for a worker",
			}),
			ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mediarelay_active_workers",
				Help: "Number of workers currently executing a job",
			}),

			ExtractTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_extract_total",
				Help: "Total extraction attempts by result (success, tool_error, timeout, no_content)",
			}, []string{"result"}),
			ExtractDurationHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediarelay_extract_duration_seconds",
				Help:    "Extraction tool run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			}),
			ResolveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_resolve_total",
				Help: "Total direct-URL resolution attempts by result",
			}, []string{"result"}),

			FilesDeliveredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_files_delivered_total",
				Help: "Per-file delivery outcomes (sent, fallback, error)",
			}, []string{"result"}),
			SentBytesHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediarelay_sent_bytes",
				Help:    "Size of directly transmitted files in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. ~256MiB
			}),

			CacheTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_resolve_cache_total",
				Help: "Resolved-URL cache lookups by result (hit, miss, error)",
			}, []string{"result"}),

			CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "mediarelay_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			}, []string{"backend"}),

			HealthStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "mediarelay_health_status",
				Help: "Health status by component (1=healthy, 0=unhealthy)",
			}, []string{"component"}),
			HealthChecksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mediarelay_health_checks_failed_total",
				Help: "Total number of failed health checks by component",
			}, []string{"component"}),

			MemoryGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mediarelay_memory_heap_alloc_bytes",
				Help: "Current heap allocation in bytes",
			}),
			GoroutinesGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mediarelay_goroutines",
				Help: "Number of goroutines",
			}),
		}
	})

	return defaultMetrics
}

// StartRuntimeMetricsCollector starts a goroutine that updates runtime metrics
func (m *Metrics) StartRuntimeMetricsCollector() {
	go func() {
		for {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			m.MemoryGauge.Set(float64(mem.HeapAlloc))
			m.GoroutinesGauge.Set(float64(runtime.NumGoroutine()))
			time.Sleep(10 * time.Second)
		}
	}()
}
