package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversations_active",
		Help: "Currently active conversations",
	})

	ConversationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversations_total",
		Help: "Total conversations started",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	E2EDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_e2e_duration_seconds",
		Help:    "End-to-end latency from speech-end to first TTS audio",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_processed_total",
		Help: "Total audio chunks received",
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_speech_segments_total",
		Help: "Speech segments detected by VAD",
	})

	ASRNoSpeechProb = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_no_speech_prob",
		Help:    "No-speech probability per accepted segment",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	ASRNoiseFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_noise_filtered_total",
		Help: "Transcripts dropped by confidence or noise filter",
	})

	ASRWEREstimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asr_wer_estimate",
		Help: "Latest WER estimate from reference transcript evaluation",
	})

	BrokerPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_publish_failures_total",
		Help: "Broker publish failures by topic",
	}, []string{"topic"})

	BrokerSubscribeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_subscribe_failures_total",
		Help: "Broker subscribe failures by topic",
	}, []string{"topic"})

	BargeInLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barge_in_latency_seconds",
		Help:    "Time from VAD speech detection to barge-in signal publish",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5},
	})

	CancellationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cancellation_latency_seconds",
		Help:    "Time from a cancellation source to a worker completing cleanup",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5},
	}, []string{"worker"})

	TTSQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_queue_depth",
		Help: "Total pending sentence requests across all conversations",
	})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tool_calls_total",
		Help: "Tool invocations by name and outcome",
	}, []string{"tool", "outcome"})
)
