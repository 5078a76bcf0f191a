package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// WebSocket ingestion metrics
	FramesReceived prometheus.Counter
	FramesInvalid  prometheus.Counter
	FramesDropped  prometheus.Counter
	FrameSize      prometheus.Histogram
	QueueDepth     prometheus.Gauge
	ActiveClients  prometheus.Gauge

	// VAD metrics
	VADFramesProcessed prometheus.Counter
	VADSpeechDetected  prometheus.Counter
	VADDetectorErrors  prometheus.Counter

	// Pipeline metrics
	TicksProcessed   prometheus.Counter
	PhrasesFinalized prometheus.Counter
	PendingUpdates   prometheus.Counter
	PhraseDuration   prometheus.Histogram
	BufferSamples    prometheus.Gauge

	// Recognition metrics
	RecognitionRequests  prometheus.Counter
	RecognitionSuccesses prometheus.Counter
	RecognitionFailures  prometheus.Counter
	RecognitionRetries   prometheus.Counter
	RecognitionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket ingestion metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_frames_received_total",
			Help: "Total number of audio frames received over WebSocket",
		}),
		FramesInvalid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_frames_invalid_total",
			Help: "Total number of frames rejected for invalid duration",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_frames_dropped_total",
			Help: "Total number of frames dropped from a full ingestion queue",
		}),
		FrameSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wst_frame_size_bytes",
			Help:    "Size of received audio frames in bytes",
			Buckets: prometheus.ExponentialBuckets(160, 2, 6), // 160B to ~5KB
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wst_ingestion_queue_depth",
			Help: "Current number of frames in the ingestion queue",
		}),
		ActiveClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wst_active_clients",
			Help: "Current number of connected WebSocket clients",
		}),

		// VAD metrics
		VADFramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_vad_frames_processed_total",
			Help: "Total number of frames classified by VAD",
		}),
		VADSpeechDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_vad_speech_detected_total",
			Help: "Total number of frames classified as speech",
		}),
		VADDetectorErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_vad_detector_errors_total",
			Help: "Total number of VAD detector errors (frames treated as silence)",
		}),

		// Pipeline metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_pipeline_ticks_total",
			Help: "Total number of assembler ticks processed",
		}),
		PhrasesFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_phrases_finalized_total",
			Help: "Total number of phrases finalized into transcript lines",
		}),
		PendingUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_pending_updates_total",
			Help: "Total number of pending transcript line rewrites",
		}),
		PhraseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wst_phrase_duration_seconds",
			Help:    "Duration of finalized phrases in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~32s
		}),
		BufferSamples: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wst_phrase_buffer_samples",
			Help: "Current number of raw samples in the phrase buffer",
		}),

		// Recognition metrics
		RecognitionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_recognition_requests_total",
			Help: "Total number of recognition requests sent",
		}),
		RecognitionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_recognition_successes_total",
			Help: "Total number of successful recognition requests",
		}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_recognition_failures_total",
			Help: "Total number of failed recognition requests",
		}),
		RecognitionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wst_recognition_retries_total",
			Help: "Total number of recognition request retries",
		}),
		RecognitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wst_recognition_duration_seconds",
			Help:    "Duration of recognition requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wst_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wst_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wst_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameReceived records a received audio frame and its size
func (m *Metrics) RecordFrameReceived(sizeBytes int) {
	m.FramesReceived.Inc()
	m.FrameSize.Observe(float64(sizeBytes))
}

// RecordFrameInvalid increments the invalid frames counter
func (m *Metrics) RecordFrameInvalid() {
	m.FramesInvalid.Inc()
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// SetQueueDepth sets the current ingestion queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetActiveClients sets the current number of connected clients
func (m *Metrics) SetActiveClients(count int) {
	m.ActiveClients.Set(float64(count))
}

// RecordVADFrame increments VAD frames processed and optionally speech detected
func (m *Metrics) RecordVADFrame(isSpeech bool) {
	m.VADFramesProcessed.Inc()
	if isSpeech {
		m.VADSpeechDetected.Inc()
	}
}

// RecordVADError increments the VAD detector errors counter
func (m *Metrics) RecordVADError() {
	m.VADDetectorErrors.Inc()
}

// RecordTick increments the pipeline ticks counter
func (m *Metrics) RecordTick() {
	m.TicksProcessed.Inc()
}

// RecordPhraseFinalized records a finalized phrase and its duration
func (m *Metrics) RecordPhraseFinalized(durationSeconds float64) {
	m.PhrasesFinalized.Inc()
	m.PhraseDuration.Observe(durationSeconds)
}

// RecordPendingUpdate increments the pending rewrites counter
func (m *Metrics) RecordPendingUpdate() {
	m.PendingUpdates.Inc()
}

// SetBufferSamples sets the current phrase buffer size in samples
func (m *Metrics) SetBufferSamples(samples int) {
	m.BufferSamples.Set(float64(samples))
}

// RecordRecognitionRequest increments the recognition requests counter
func (m *Metrics) RecordRecognitionRequest() {
	m.RecognitionRequests.Inc()
}

// RecordRecognitionSuccess records a successful recognition request
func (m *Metrics) RecordRecognitionSuccess(durationSeconds float64) {
	m.RecognitionSuccesses.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordRecognitionFailure records a failed recognition request
func (m *Metrics) RecordRecognitionFailure(durationSeconds float64) {
	m.RecognitionFailures.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordRecognitionRetry increments the retry counter
func (m *Metrics) RecordRecognitionRetry() {
	m.RecognitionRetries.Inc()
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
