package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recorder service
type Metrics struct {
	// Capture metrics
	ChunksCaptured   prometheus.Counter
	SamplesCaptured  prometheus.Counter
	DiscardEvents    prometheus.Counter
	SamplesDiscarded prometheus.Counter

	// Window pipeline metrics
	WindowsEmitted   prometheus.Counter
	WindowsBroadcast prometheus.Counter

	// Encoder metrics
	EncodeCommands   *prometheus.CounterVec
	EncodeDrops      prometheus.Counter
	EncodeQueueDepth prometheus.Gauge

	// Artifact metrics
	ArtifactsProduced prometheus.Counter
	ArtifactSize      prometheus.Histogram

	// Lifecycle metrics
	StateTransitions *prometheus.CounterVec
	RecorderErrors   prometheus.Counter
	SessionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		ChunksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_chunks_captured_total",
			Help: "Total number of PCM chunks delivered by the capture node",
		}),
		SamplesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_samples_captured_total",
			Help: "Total number of PCM samples delivered by the capture node",
		}),
		DiscardEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_discard_events_total",
			Help: "Total number of backpressure discard events",
		}),
		SamplesDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_samples_discarded_total",
			Help: "Total number of samples dropped by backpressure discards",
		}),

		// Window pipeline metrics
		WindowsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_windows_emitted_total",
			Help: "Total number of fixed-size windows emitted by the accumulator",
		}),
		WindowsBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_windows_broadcast_total",
			Help: "Total number of windows delivered to buffer observers",
		}),

		// Encoder metrics
		EncodeCommands: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_encode_commands_total",
			Help: "Total number of commands accepted by the encoder",
		}, []string{"op"}),
		EncodeDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_encode_drops_total",
			Help: "Total number of windows dropped by a full encoder queue",
		}),
		EncodeQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_encode_queue_depth",
			Help: "Current number of commands waiting in the encoder queue",
		}),

		// Artifact metrics
		ArtifactsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_artifacts_produced_total",
			Help: "Total number of recording artifacts produced",
		}),
		ArtifactSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_artifact_size_bytes",
			Help:    "Size of produced recording artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Lifecycle metrics
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_state_transitions_total",
			Help: "Total number of recorder state transitions",
		}, []string{"from", "to"}),
		RecorderErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recorder_errors_total",
			Help: "Total number of errors surfaced to error observers",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_session_duration_seconds",
			Help:    "Duration of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkCaptured records a chunk delivered by the capture node
func (m *Metrics) RecordChunkCaptured(samples int) {
	m.ChunksCaptured.Inc()
	m.SamplesCaptured.Add(float64(samples))
}

// RecordDiscard records a backpressure discard event
func (m *Metrics) RecordDiscard(samples uint64) {
	m.DiscardEvents.Inc()
	m.SamplesDiscarded.Add(float64(samples))
}

// RecordWindowEmitted increments the emitted windows counter
func (m *Metrics) RecordWindowEmitted() {
	m.WindowsEmitted.Inc()
}

// RecordWindowBroadcast increments the broadcast windows counter
func (m *Metrics) RecordWindowBroadcast() {
	m.WindowsBroadcast.Inc()
}

// RecordEncodeCommand records an accepted encoder command
func (m *Metrics) RecordEncodeCommand(op string) {
	m.EncodeCommands.WithLabelValues(op).Inc()
}

// RecordEncodeDrop increments the encoder drop counter
func (m *Metrics) RecordEncodeDrop() {
	m.EncodeDrops.Inc()
}

// SetEncodeQueueDepth sets the current encoder queue depth
func (m *Metrics) SetEncodeQueueDepth(depth int) {
	m.EncodeQueueDepth.Set(float64(depth))
}

// RecordArtifact records a produced recording artifact
func (m *Metrics) RecordArtifact(sizeBytes int) {
	m.ArtifactsProduced.Inc()
	m.ArtifactSize.Observe(float64(sizeBytes))
}

// RecordStateTransition records a lifecycle state transition
func (m *Metrics) RecordStateTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordError increments the surfaced errors counter
func (m *Metrics) RecordError() {
	m.RecorderErrors.Inc()
}

// RecordSessionEnded records the duration of a finished recording session
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
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
