// Package metrics exposes the export pipeline's counters and histograms in
// Prometheus text exposition format. The Recorder owns its registry so a
// process wires exactly one instance, dependency-injected like the caches.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcome label values.
const (
	OutcomeDone   = "done"
	OutcomeFailed = "failed"
	OutcomeCached = "cached"
)

type Recorder struct {
	registry *prometheus.Registry

	jobOutcomes    *prometheus.CounterVec
	renderDuration prometheus.Histogram

	resultCacheHits   prometheus.Counter
	resultCacheMisses prometheus.Counter

	templateCacheHits      prometheus.Counter
	templateCacheMisses    prometheus.Counter
	templateCacheEvictions prometheus.Counter
	templateCacheExpiries  prometheus.Counter

	queueDepth  prometheus.Gauge
	workersBusy prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docforge_export_jobs_total",
			Help: "Export job outcomes by status.",
		}, []string{"status"}),

		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docforge_render_duration_seconds",
			Help:    "Wall-clock duration of renderer invocations.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),

		resultCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_result_cache_hits_total",
			Help: "Render-skip cache hits.",
		}),
		resultCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_result_cache_misses_total",
			Help: "Render-skip cache misses.",
		}),

		templateCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_template_cache_hits_total",
			Help: "Template asset cache hits.",
		}),
		templateCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_template_cache_misses_total",
			Help: "Template asset cache misses.",
		}),
		templateCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_template_cache_evictions_total",
			Help: "Template cache entries evicted for capacity or memory.",
		}),
		templateCacheExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docforge_template_cache_expiries_total",
			Help: "Template cache entries removed after their TTL lapsed.",
		}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docforge_queue_depth",
			Help: "Jobs waiting in the export queue.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docforge_workers_busy",
			Help: "Workers currently processing a job.",
		}),
	}

	r.registry.MustRegister(
		r.jobOutcomes,
		r.renderDuration,
		r.resultCacheHits,
		r.resultCacheMisses,
		r.templateCacheHits,
		r.templateCacheMisses,
		r.templateCacheEvictions,
		r.templateCacheExpiries,
		r.queueDepth,
		r.workersBusy,
	)
	return r
}

// Handler serves the registry in text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) JobOutcome(status string) { r.jobOutcomes.WithLabelValues(status).Inc() }

func (r *Recorder) ObserveRenderDuration(seconds float64) { r.renderDuration.Observe(seconds) }

func (r *Recorder) ResultCacheHit()  { r.resultCacheHits.Inc() }
func (r *Recorder) ResultCacheMiss() { r.resultCacheMisses.Inc() }

func (r *Recorder) SetQueueDepth(n float64) { r.queueDepth.Set(n) }
func (r *Recorder) WorkerStarted()          { r.workersBusy.Inc() }
func (r *Recorder) WorkerFinished()         { r.workersBusy.Dec() }

// TemplateCache returns an adapter satisfying the asset cache's Metrics
// interface.
func (r *Recorder) TemplateCache() *TemplateCacheMetrics {
	return &TemplateCacheMetrics{r: r}
}

type TemplateCacheMetrics struct {
	r *Recorder
}

func (m *TemplateCacheMetrics) Hit()      { m.r.templateCacheHits.Inc() }
func (m *TemplateCacheMetrics) Miss()     { m.r.templateCacheMisses.Inc() }
func (m *TemplateCacheMetrics) Eviction() { m.r.templateCacheEvictions.Inc() }
func (m *TemplateCacheMetrics) Expire()   { m.r.templateCacheExpiries.Inc() }
