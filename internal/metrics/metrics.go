package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satviz_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satviz_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_ticks_total",
		Help: "Total number of position update ticks.",
	})

	tickDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satviz_tick_duration_seconds",
		Help:    "Time spent propagating all active satellites in one tick.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	satellites = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "satviz_satellites",
			Help: "Number of selected satellites by state.",
		},
		[]string{"state"},
	)

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_evictions_total",
		Help: "Satellites evicted after a propagation failure.",
	})

	rejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_rejections_total",
		Help: "Requested satellites for which no usable element set was found.",
	})

	parseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_tle_parse_errors_total",
		Help: "Element sets rejected by the parser.",
	})

	tleFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satviz_tle_fetches_total",
			Help: "Element set fetches by result.",
		},
		[]string{"result"},
	)

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satviz_tle_dataset_age_seconds",
		Help: "Seconds since the element sets were last fetched.",
	})

	orbitRefreshesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_orbit_refreshes_total",
		Help: "Orbit paths resampled.",
	})

	propagationWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satviz_propagation_workers",
		Help: "Size of the propagation worker pool.",
	})

	streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satviz_stream_clients",
		Help: "Connected WebSocket clients.",
	})

	streamDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satviz_stream_dropped_frames_total",
		Help: "Frames dropped because a client was too slow.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		ticksTotal,
		tickDurationSeconds,
		satellites,
		evictionsTotal,
		rejectionsTotal,
		parseErrorsTotal,
		tleFetchesTotal,
		tleDatasetAge,
		orbitRefreshesTotal,
		propagationWorkers,
		streamClients,
		streamDroppedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick records one tick and its duration.
func ObserveTick(d time.Duration) {
	ticksTotal.Inc()
	tickDurationSeconds.Observe(d.Seconds())
}

// SetSatellites sets the number of selected satellites in state.
func SetSatellites(state string, n int) { satellites.WithLabelValues(state).Set(float64(n)) }

// AddEvictions counts evicted satellites.
func AddEvictions(n int) { evictionsTotal.Add(float64(n)) }

// IncRejections counts one rejected satellite.
func IncRejections() { rejectionsTotal.Inc() }

// AddParseErrors counts rejected element sets.
func AddParseErrors(n int) { parseErrorsTotal.Add(float64(n)) }

// IncTLEFetch counts one fetch with result "ok" or "error".
func IncTLEFetch(result string) { tleFetchesTotal.WithLabelValues(result).Inc() }

// SetTLEDatasetAge sets the element set age gauge.
func SetTLEDatasetAge(seconds float64) { tleDatasetAge.Set(seconds) }

// AddOrbitRefreshes counts resampled orbit paths.
func AddOrbitRefreshes(n int) { orbitRefreshesTotal.Add(float64(n)) }

// SetPropagationWorkers sets the worker pool size gauge.
func SetPropagationWorkers(n int) { propagationWorkers.Set(float64(n)) }

// StreamClientConnected counts a new WebSocket client.
func StreamClientConnected() { streamClients.Inc() }

// StreamClientDisconnected counts a client going away.
func StreamClientDisconnected() { streamClients.Dec() }

// IncStreamDropped counts one frame dropped for a slow client.
func IncStreamDropped() { streamDroppedTotal.Inc() }

var (
	exactRoutes = map[string]bool{
		"/":                          true,
		"/healthz":                   true,
		"/readyz":                    true,
		"/metrics":                   true,
		"/api/v1/satellites":         true,
		"/api/v1/groundstations":     true,
		"/api/v1/clock":              true,
		"/api/v1/presentation/earth": true,
		"/api/v1/tle/metadata":       true,
		"/api/v1/tle/refresh":        true,
		"/api/v1/stream":             true,
	}

	paramRoutes = []struct {
		re    *regexp.Regexp
		label string
	}{
		{regexp.MustCompile(`^/api/v1/satellites/[0-9]{1,5}$`), "/api/v1/satellites/{id}"},
		{regexp.MustCompile(`^/api/v1/satellites/[0-9]{1,5}/summary$`), "/api/v1/satellites/{id}/summary"},
		{regexp.MustCompile(`^/api/v1/satellites/[0-9]{1,5}/orbit$`), "/api/v1/satellites/{id}/orbit"},
		{regexp.MustCompile(`^/api/v1/presentation/[0-9]{1,5}$`), "/api/v1/presentation/{id}"},
		{regexp.MustCompile(`^/api/v1/groundstations/[A-Za-z]+/passes$`), "/api/v1/groundstations/{name}/passes"},
	}
)

// normalizeRoute maps a request path to a bounded label set so catalog
// numbers and scanner traffic cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, r := range paramRoutes {
		if r.re.MatchString(path) {
			return r.label
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

// Hijack passes through to the underlying writer for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
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
