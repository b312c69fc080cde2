// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call_recap"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionDuration  prometheus.Histogram
	StateTransitions *prometheus.CounterVec
	SessionErrors    *prometheus.CounterVec

	// Audio metrics
	AudioBytesBuffered  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	AudioFramesDropped  *prometheus.CounterVec
	AudioTruncations    prometheus.Counter

	// Transcription metrics
	TranscriptionAttempts     *prometheus.CounterVec
	TranscriptionLatency      *prometheus.HistogramVec
	TranscriptionFallbacks    *prometheus.CounterVec
	TranscriptionUnrecognized prometheus.Counter
	BreakerTrips              *prometheus.CounterVec

	// Summarization metrics
	SummariesTotal     *prometheus.CounterVec
	SummaryQuality     prometheus.Histogram
	SingleFlightWaits  prometheus.Counter
	GenerativeInFlight prometheus.Gauge
	GenerativeFailures *prometheus.CounterVec
	ExtractorFailures  *prometheus.CounterVec

	// Storage metrics
	StorageHandoffs *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Notification metrics
	NotificationsDropped prometheus.Counter

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// New creates all metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so instances never collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions not yet returned to idle",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of captured sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Lifecycle state transitions",
		}, []string{"from", "to"}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Errors surfaced to the lifecycle caller",
		}, []string{"stage"}),

		// Audio metrics
		AudioBytesBuffered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_buffered_total",
			Help:      "Total PCM bytes appended to session buffers",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames delivered by capture",
		}),
		AudioFramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Audio frames not buffered",
		}, []string{"reason"}),
		AudioTruncations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_truncations_total",
			Help:      "Sessions whose buffer hit the byte ceiling",
		}),

		// Transcription metrics
		TranscriptionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_attempts_total",
			Help:      "Provider attempts by outcome",
		}, []string{"provider", "outcome"}),
		TranscriptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Provider transcription latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		TranscriptionFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_fallbacks_total",
			Help:      "Times a provider was skipped in favor of the next one",
		}, []string{"provider", "reason"}),
		TranscriptionUnrecognized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_unrecognized_total",
			Help:      "Sessions where every provider failed",
		}),
		BreakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker transitions to open",
		}, []string{"provider"}),

		// Summarization metrics
		SummariesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summaries produced by method",
		}, []string{"method"}),
		SummaryQuality: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_quality_score",
			Help:      "Quality gate score of summarized transcripts",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		SingleFlightWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_single_flight_waits_total",
			Help:      "Times a summarization caller polled for the gate",
		}),
		GenerativeInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generative_in_flight",
			Help:      "Generative summarizations currently running",
		}),
		GenerativeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generative_failures_total",
			Help:      "Generative summarization failures",
		}, []string{"backend", "reason"}),
		ExtractorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_failures_total",
			Help:      "Extractors that degraded to an empty result",
		}, []string{"extractor"}),

		// Storage metrics
		StorageHandoffs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_handoffs_total",
			Help:      "Structured record handoffs by outcome",
		}, []string{"backend", "outcome"}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Controller events dropped because the consumer was slow",
		}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC unary requests by method and code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session leaving idle.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session returning to idle.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	if durationSeconds > 0 {
		m.SessionDuration.Observe(durationSeconds)
	}
}

// RecordTransition records a lifecycle state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordSessionError records an error surfaced to the caller.
func (m *Metrics) RecordSessionError(stage string) {
	m.SessionErrors.WithLabelValues(stage).Inc()
}

// RecordAudioBuffered records audio bytes and frames received.
func (m *Metrics) RecordAudioBuffered(bytes int) {
	m.AudioBytesBuffered.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordFrameDropped records a frame that was not buffered.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.AudioFramesReceived.Inc()
	m.AudioFramesDropped.WithLabelValues(reason).Inc()
}

// RecordTruncation records a session buffer reaching its ceiling.
func (m *Metrics) RecordTruncation() {
	m.AudioTruncations.Inc()
}

// RecordTranscription records one provider attempt.
func (m *Metrics) RecordTranscription(provider, outcome string, latencySeconds float64) {
	m.TranscriptionAttempts.WithLabelValues(provider, outcome).Inc()
	if latencySeconds > 0 {
		m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
	}
}

// RecordFallback records a provider being passed over.
func (m *Metrics) RecordFallback(provider, reason string) {
	m.TranscriptionFallbacks.WithLabelValues(provider, reason).Inc()
}

// RecordUnrecognized records a session where every provider failed.
func (m *Metrics) RecordUnrecognized() {
	m.TranscriptionUnrecognized.Inc()
}

// RecordBreakerTrip records a breaker opening.
func (m *Metrics) RecordBreakerTrip(provider string) {
	m.BreakerTrips.WithLabelValues(provider).Inc()
}

// RecordSummary records a produced summary.
func (m *Metrics) RecordSummary(method string, quality float64) {
	m.SummariesTotal.WithLabelValues(method).Inc()
	m.SummaryQuality.Observe(quality)
}

// RecordSingleFlightWait records one poll of the summarization gate.
func (m *Metrics) RecordSingleFlightWait() {
	m.SingleFlightWaits.Inc()
}

// RecordGenerativeFailure records a failed generative attempt.
func (m *Metrics) RecordGenerativeFailure(backend, reason string) {
	m.GenerativeFailures.WithLabelValues(backend, reason).Inc()
}

// RecordExtractorFailure records an extractor degrading to empty.
func (m *Metrics) RecordExtractorFailure(extractor string) {
	m.ExtractorFailures.WithLabelValues(extractor).Inc()
}

// RecordStorage records a record handoff.
func (m *Metrics) RecordStorage(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StorageHandoffs.WithLabelValues(backend, outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordNotificationDropped records an event the consumer did not take.
func (m *Metrics) RecordNotificationDropped() {
	m.NotificationsDropped.Inc()
}

// RecordGRPCRequest records a unary gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}
