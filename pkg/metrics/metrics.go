// Package metrics exposes Prometheus counters for the audio session
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a live tutoring session.
type Metrics struct {
	// Uplink
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Playback
	SegmentsScheduled prometheus.Counter
	Interruptions     prometheus.Counter

	// Transcript
	TurnsCommitted    prometheus.Counter
	MessagesPersisted prometheus.Counter

	// Failures
	PersistenceFailures prometheus.Counter
	StreamErrors        prometheus.Counter
}

// New creates and registers all session metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_frames_sent_total",
			Help: "Uplink audio frames sent to the live stream",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_frames_dropped_total",
			Help: "Uplink audio frames dropped before reaching the stream",
		}),
		SegmentsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_segments_scheduled_total",
			Help: "Downlink audio segments scheduled for playback",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_interruptions_total",
			Help: "Tutor turns cut short by user speech",
		}),
		TurnsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_turns_committed_total",
			Help: "Completed turn pairs committed to the transcript",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_messages_persisted_total",
			Help: "Transcript messages written to storage",
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_persistence_failures_total",
			Help: "Failed transcript or session writes",
		}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingopipe_stream_errors_total",
			Help: "Live stream failures",
		}),
	}
}

// NewDefault registers the metrics on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
