package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

// Sweep outcomes recorded by RecordSweep.
const (
	SweepOutcomeComplete = "complete"
	SweepOutcomeFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	fetchTotal       *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	sweepTotal       *prometheus.CounterVec
	sweepCached      prometheus.Gauge
	sweepAssets      prometheus.Gauge
	connectedClients prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	sweepsCompleted      uint64
	sweepsFailed         uint64
	clientCount          int64

	sourcesMu sync.Mutex
	sources   map[string]uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	fetchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_total",
		Help: "Intercepted fetches by the branch that produced the response",
	}, []string{"source"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache put operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sweepTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_sweeps_total",
		Help: "Bulk pre-cache sweeps by outcome",
	}, []string{"outcome"})

	sweepCached := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_sweep_cached_assets",
		Help: "Assets cached by the most recent sweep so far",
	})

	sweepAssets := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_sweep_total_assets",
		Help: "Assets referenced by the manifest in the most recent sweep",
	})

	connectedClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_connected_clients",
		Help: "Clients currently subscribed to worker messages",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, fetchTotal, cacheLatency, cacheWrite, cacheHitRatio,
		cacheHits, cacheMisses, sweepTotal, sweepCached, sweepAssets, connectedClients, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		fetchTotal:       fetchTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		sweepTotal:       sweepTotal,
		sweepCached:      sweepCached,
		sweepAssets:      sweepAssets,
		connectedClients: connectedClients,
		sources:          make(map[string]uint64),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordFetch counts an intercepted fetch by the branch that answered it.
func (m *MetricsService) RecordFetch(source models.FetchSource) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(string(source)).Inc()
	m.sourcesMu.Lock()
	m.sources[string(source)]++
	m.sourcesMu.Unlock()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// SetSweepProgress publishes the running sweep's counters.
func (m *MetricsService) SetSweepProgress(cached, total int) {
	if m == nil {
		return
	}
	m.sweepCached.Set(float64(cached))
	m.sweepAssets.Set(float64(total))
}

// RecordSweep counts a finished sweep.
func (m *MetricsService) RecordSweep(outcome string) {
	if m == nil {
		return
	}
	m.sweepTotal.WithLabelValues(outcome).Inc()
	if outcome == SweepOutcomeComplete {
		atomic.AddUint64(&m.sweepsCompleted, 1)
	} else {
		atomic.AddUint64(&m.sweepsFailed, 1)
	}
}

// SetConnectedClients publishes the subscribed client count.
func (m *MetricsService) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.connectedClients.Set(float64(n))
	atomic.StoreInt64(&m.clientCount, int64(n))
}

// Snapshot returns aggregated metrics suitable for the admin API.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.sourcesMu.Lock()
	sources := make(map[string]uint64, len(m.sources))
	for k, v := range m.sources {
		sources[k] = v
	}
	m.sourcesMu.Unlock()

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		FetchSources:             sources,
		SweepsCompleted:          atomic.LoadUint64(&m.sweepsCompleted),
		SweepsFailed:             atomic.LoadUint64(&m.sweepsFailed),
		ConnectedClients:         int(atomic.LoadInt64(&m.clientCount)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
