package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the pipeline.
type Metrics struct {
	FragmentsReceived prometheus.Counter
	FragmentsDropped  prometheus.Counter
	ChunksPushed      prometheus.Counter

	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	ActiveSessions  prometheus.Gauge

	PartialTranscripts prometheus.Counter
	FinalTranscripts   prometheus.Counter

	TriggersFired      prometheus.Counter
	TriggersSuppressed prometheus.Counter
	CardsEmitted       prometheus.Counter

	BroadcastsSent   prometheus.Counter
	StaleConnections prometheus.Counter
}

// New registers all instruments with the default registry.
func New() *Metrics {
	return &Metrics{
		FragmentsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_audio_fragments_received_total",
			Help: "Total audio fragments accepted from clients",
		}),
		FragmentsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_audio_fragments_dropped_total",
			Help: "Total malformed audio fragments dropped",
		}),
		ChunksPushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_audio_chunks_pushed_total",
			Help: "Total fixed-duration slices pushed to transcription sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_stt_sessions_started_total",
			Help: "Total streaming transcription sessions opened",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_stt_sessions_failed_total",
			Help: "Total streaming transcription sessions that ended in error",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callpilot_stt_sessions_active",
			Help: "Streaming transcription sessions currently open",
		}),
		PartialTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_transcripts_partial_total",
			Help: "Total partial transcript events published",
		}),
		FinalTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_transcripts_final_total",
			Help: "Total final transcript segments published",
		}),
		TriggersFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_triggers_fired_total",
			Help: "Total triggers emitted after passing the cooldown gate",
		}),
		TriggersSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_triggers_suppressed_total",
			Help: "Total trigger evaluations suppressed by the cooldown",
		}),
		CardsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_assist_cards_total",
			Help: "Total assist cards assembled and published",
		}),
		BroadcastsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_broadcast_messages_total",
			Help: "Total messages delivered to subscriber connections",
		}),
		StaleConnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callpilot_broadcast_stale_connections_total",
			Help: "Total subscriber connections evicted after a gone delivery",
		}),
	}
}
