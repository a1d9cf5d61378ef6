package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Transcription request metrics
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RequestsInFlight  prometheus.Gauge
	InvalidAudioTotal prometheus.Counter

	// Audio metrics
	AudioDuration     prometheus.Histogram
	WindowsPerRequest prometheus.Histogram

	// Segment metrics
	SegmentsPerRequest prometheus.Histogram

	// Engine metrics
	EngineFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Transcription request metrics
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_requests_total",
			Help: "Total number of transcription requests",
		}, []string{"format", "status"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_request_duration_seconds",
			Help:    "End-to-end duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		RequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "asr_requests_in_flight",
			Help: "Current number of transcription requests being served",
		}),
		InvalidAudioTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_invalid_audio_total",
			Help: "Total number of requests rejected for undecodable audio",
		}),

		// Audio metrics
		AudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_audio_duration_seconds",
			Help:    "Duration of submitted audio",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		WindowsPerRequest: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_windows_per_request",
			Help:    "Number of inference windows per transcription request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128
		}),

		// Segment metrics
		SegmentsPerRequest: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_segments_per_request",
			Help:    "Number of transcript segments per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		}),

		// Engine metrics
		EngineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_engine_failures_total",
			Help: "Total number of requests failed by the inference engine",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRequestStarted marks a transcription request in flight
func (m *Metrics) RecordRequestStarted() {
	m.RequestsInFlight.Inc()
}

// RecordRequestSuccess records a completed transcription request
func (m *Metrics) RecordRequestSuccess(format string, durationSeconds, audioSeconds float64, windows, segments int) {
	m.RequestsInFlight.Dec()
	m.RequestsTotal.WithLabelValues(format, "success").Inc()
	m.RequestDuration.Observe(durationSeconds)
	m.AudioDuration.Observe(audioSeconds)
	m.WindowsPerRequest.Observe(float64(windows))
	m.SegmentsPerRequest.Observe(float64(segments))
}

// RecordRequestFailure records a failed transcription request
func (m *Metrics) RecordRequestFailure(format string, durationSeconds float64) {
	m.RequestsInFlight.Dec()
	m.RequestsTotal.WithLabelValues(format, "failure").Inc()
	m.RequestDuration.Observe(durationSeconds)
}

// RecordInvalidAudio increments the invalid audio counter
func (m *Metrics) RecordInvalidAudio() {
	m.InvalidAudioTotal.Inc()
}

// RecordEngineFailure increments the engine failure counter
func (m *Metrics) RecordEngineFailure() {
	m.EngineFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
