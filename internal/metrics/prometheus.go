package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the recorder service
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingsStopped prometheus.Counter
	AutoStops         prometheus.Counter
	RecordingActive   prometheus.Gauge
	Speaking          prometheus.Gauge
	RecordingDuration prometheus.Histogram
	AcquireFailures   prometheus.Counter

	// Encoding metrics
	ChunksEncoded    prometheus.Counter
	ChunkSize        prometheus.Histogram
	SilenceAbandoned prometheus.Counter
	EncodeFailures   prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  *prometheus.CounterVec
	TranscriptionSuccesses *prometheus.CounterVec
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics in a fresh registry that also carries the
// Go runtime and process collectors
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(registry)
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		// Recording metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_recordings_stopped_total",
			Help: "Total number of recordings stopped",
		}),
		AutoStops: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_auto_stops_total",
			Help: "Total number of recordings stopped by the silence timeout",
		}),
		RecordingActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whisper_recording_active",
			Help: "Whether a recording is in progress",
		}),
		Speaking: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whisper_speaking",
			Help: "Whether the voice activity detector hears speech",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_recording_duration_seconds",
			Help:    "Duration of recordings from start to stop",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		AcquireFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_stream_acquire_failures_total",
			Help: "Total number of failed microphone acquisitions",
		}),

		// Encoding metrics
		ChunksEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_chunks_encoded_total",
			Help: "Total number of streaming chunks encoded",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_chunk_size_bytes",
			Help:    "Size of encoded streaming chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		SilenceAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_silence_abandoned_total",
			Help: "Total number of recordings abandoned after silence removal",
		}),
		EncodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_encode_failures_total",
			Help: "Total number of failed encoder or transcoder runs",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}, []string{"kind"}),
		TranscriptionSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}, []string{"kind"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}, []string{"kind"}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisper_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"kind"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisper_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Transcription kinds
const (
	KindFinal   = "final"
	KindInterim = "interim"
)

// RecordRecordingStarted counts a started recording
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	m.RecordingActive.Set(1)
}

// RecordRecordingStopped counts a stopped recording and records its duration
func (m *Metrics) RecordRecordingStopped(durationSeconds float64, auto bool) {
	if m == nil {
		return
	}
	m.RecordingsStopped.Inc()
	m.RecordingActive.Set(0)
	m.RecordingDuration.Observe(durationSeconds)
	if auto {
		m.AutoStops.Inc()
	}
}

// RecordAcquireFailure counts a failed microphone acquisition
func (m *Metrics) RecordAcquireFailure() {
	if m == nil {
		return
	}
	m.AcquireFailures.Inc()
}

// SetSpeaking sets the speaking gauge
func (m *Metrics) SetSpeaking(speaking bool) {
	if m == nil {
		return
	}
	if speaking {
		m.Speaking.Set(1)
	} else {
		m.Speaking.Set(0)
	}
}

// RecordChunkEncoded records an encoded streaming chunk
func (m *Metrics) RecordChunkEncoded(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksEncoded.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordSilenceAbandoned counts a recording abandoned after silence removal
func (m *Metrics) RecordSilenceAbandoned() {
	if m == nil {
		return
	}
	m.SilenceAbandoned.Inc()
}

// RecordEncodeFailure counts a failed encoding step
func (m *Metrics) RecordEncodeFailure() {
	if m == nil {
		return
	}
	m.EncodeFailures.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest(kind string) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(kind).Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
