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
			Name: "aperture_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aperture_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	psfSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_psf_samples_total",
			Help: "PSF samples evaluated, by evaluation path.",
		},
		[]string{"path"},
	)

	psfDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aperture_psf_batch_duration_seconds",
			Help:    "Wall time of one PSF batch evaluation.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
		},
		[]string{"path"},
	)

	integrationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aperture_psf_integration_failures_total",
			Help: "Hankel integrals that failed to converge.",
		},
	)

	fwhmSolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_fwhm_solves_total",
			Help: "FWHM root searches, by convergence outcome.",
		},
		[]string{"converged"},
	)

	pupilCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aperture_pupil_cache_hits_total",
			Help: "Pupil mask lookups served from cache.",
		},
	)

	pupilCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aperture_pupil_cache_misses_total",
			Help: "Pupil mask lookups that rebuilt the mask.",
		},
	)

	catalogTelescopes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aperture_catalog_telescopes",
			Help: "Telescopes in the loaded catalog.",
		},
	)

	evaluationWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aperture_evaluation_workers",
			Help: "Configured PSF integration worker count.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(psfSamplesTotal)
	prometheus.MustRegister(psfDurationSeconds)
	prometheus.MustRegister(integrationFailuresTotal)
	prometheus.MustRegister(fwhmSolvesTotal)
	prometheus.MustRegister(pupilCacheHitsTotal)
	prometheus.MustRegister(pupilCacheMissesTotal)
	prometheus.MustRegister(catalogTelescopes)
	prometheus.MustRegister(evaluationWorkers)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPSF records one PSF batch on the given evaluation path.
func RecordPSF(path string, duration time.Duration, samples int) {
	psfSamplesTotal.WithLabelValues(path).Add(float64(samples))
	psfDurationSeconds.WithLabelValues(path).Observe(duration.Seconds())
}

// IncIntegrationFailures counts a failed Hankel integral.
func IncIntegrationFailures() {
	integrationFailuresTotal.Inc()
}

// RecordFWHM counts an FWHM solve by outcome.
func RecordFWHM(converged bool) {
	fwhmSolvesTotal.WithLabelValues(strconv.FormatBool(converged)).Inc()
}

// IncPupilCacheHits counts a pupil cache hit.
func IncPupilCacheHits() {
	pupilCacheHitsTotal.Inc()
}

// IncPupilCacheMisses counts a pupil cache miss.
func IncPupilCacheMisses() {
	pupilCacheMissesTotal.Inc()
}

// SetCatalogTelescopes publishes the catalog size.
func SetCatalogTelescopes(n int) {
	catalogTelescopes.Set(float64(n))
}

// SetEvaluationWorkers publishes the worker pool size.
func SetEvaluationWorkers(n int) {
	evaluationWorkers.Set(float64(n))
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

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}

var exactRoutes = map[string]bool{
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/telescopes": true,
}

// telescopeActions are the per-telescope endpoints under /api/v1/telescopes/{name}/.
var telescopeActions = map[string]bool{
	"otf":   true,
	"psf":   true,
	"fwhm":  true,
	"pupil": true,
}

// normalizeRoute collapses request paths to a bounded label set so that
// telescope names and bot probes do not blow up metric cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/telescopes/")
	if !ok {
		return "other"
	}
	name, action, ok := strings.Cut(rest, "/")
	if !ok || name == "" || !telescopeActions[action] {
		return "other"
	}
	return "/api/v1/telescopes/{name}/" + action
}
