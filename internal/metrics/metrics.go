package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globe_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "globe_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	frameDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "globe_frame_duration_seconds",
			Help:    "Time to build one frame from wall-clock time to renderer uniforms.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globe_frames_total",
			Help: "Frames built, by result.",
		},
		[]string{"result"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "globe_propagation_duration_seconds",
			Help:    "Duration of one propagation batch.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	propagatedObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globe_propagated_objects_total",
			Help: "Objects propagated, by result.",
		},
		[]string{"result"},
	)

	keplerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "globe_kepler_failures_total",
			Help: "Kepler solver runs that exhausted their iteration budget.",
		},
	)

	propagationWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "globe_propagation_workers_active",
			Help: "Configured propagation worker count.",
		},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "globe_catalog_objects",
			Help: "Number of tracked objects in the catalog.",
		},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_cache_hits_total",
		Help: "Keyframe cache hits.",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_cache_misses_total",
		Help: "Keyframe cache misses.",
	})
	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_cache_entries",
		Help: "Keyframes currently cached.",
	})
	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_cache_size_bytes",
		Help: "Estimated memory held by cached keyframes.",
	})
	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_cache_evictions_total",
		Help: "Keyframes evicted from the cache window.",
	})
	cacheRebuildActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_cache_rebuild_active",
		Help: "1 while the keyframe cache is rebuilt for a reloaded catalog.",
	})
	cacheRegenerationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_cache_regeneration_errors_total",
		Help: "Failed keyframe generation runs.",
	})
	cacheRegenerationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_cache_regeneration_duration_seconds",
		Help:    "Duration of keyframe generation runs.",
		Buckets: prometheus.DefBuckets,
	})

	streamConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_stream_connections_total",
		Help: "Frame stream connections accepted.",
	})
	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_streams_active",
		Help: "Open frame streams.",
	})
	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_stream_messages_total",
		Help: "SSE messages written.",
	})
	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_stream_bytes_total",
		Help: "SSE bytes written.",
	})
	streamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stream_errors_total",
		Help: "Frame stream errors, by reason.",
	}, []string{"reason"})

	passesPredictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_passes_predicted_total",
		Help: "Passes found by the pass predictor.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		frameDurationSeconds,
		framesTotal,
		propagationDurationSeconds,
		propagatedObjectsTotal,
		keplerFailuresTotal,
		propagationWorkersActive,
		catalogObjects,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEntries,
		cacheSizeBytes,
		cacheEvictionsTotal,
		cacheRebuildActive,
		cacheRegenerationErrorsTotal,
		cacheRegenerationDurationSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
		passesPredictedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFrame records one frame build.
func ObserveFrame(d time.Duration, err error) {
	frameDurationSeconds.Observe(d.Seconds())
	if err != nil {
		framesTotal.WithLabelValues("error").Inc()
		return
	}
	framesTotal.WithLabelValues("ok").Inc()
}

// RecordPropagation records one propagation batch.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagatedObjectsTotal.WithLabelValues("success").Add(float64(success))
	propagatedObjectsTotal.WithLabelValues("error").Add(float64(errors))
}

func IncKeplerFailures() { keplerFailuresTotal.Inc() }
func SetPropagationWorkersActive(n int) { propagationWorkersActive.Set(float64(n)) }
func SetCatalogObjects(n int) { catalogObjects.Set(float64(n)) }
func IncCacheHits() { cacheHitsTotal.Inc() }
func IncCacheMisses() { cacheMissesTotal.Inc() }
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheRebuildActive(active bool) {
	if active {
		cacheRebuildActive.Set(1)
		return
	}
	cacheRebuildActive.Set(0)
}
func IncCacheRegenerationErrors() { cacheRegenerationErrorsTotal.Inc() }
func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenerationDurationSeconds.Observe(d.Seconds())
}
func IncStreamConnections() { streamConnectionsTotal.Inc() }
func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }
func IncStreamMessages() { streamMessagesTotal.Inc() }
func AddStreamBytes(n int) { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }
func AddPassesPredicted(n int) { passesPredictedTotal.Add(float64(n)) }

// knownRoutes are recorded with their own path label.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/index.html":           true,
	"/app.js":               true,
	"/styles.css":           true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/time":          true,
	"/api/v1/ephemeris":     true,
	"/api/v1/illumination":  true,
	"/api/v1/frame":         true,
	"/api/v1/objects":       true,
	"/api/v1/geometry":      true,
	"/api/v1/passes":        true,
	"/api/v1/cache/stats":   true,
	"/api/v1/stream/frames": true,
}

// normalizeRoute maps a request path to a bounded set of metric labels.
// Object IDs collapse into one template; anything else unknown is "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/objects/"); ok {
		if id, ok := strings.CutSuffix(rest, "/trajectory"); ok && id != "" && !strings.Contains(id, "/") {
			return "/api/v1/objects/{id}/trajectory"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE works through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
