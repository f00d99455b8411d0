// Package metrics provides Prometheus metrics for the verification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame results.
const (
	FrameFace     = "face"
	FrameNoFace   = "no_face"
	FrameDegraded = "degraded"
	FrameNoFrame  = "no_frame"
)

// Commit results.
const (
	CommitRecorded        = "recorded"
	CommitAlreadyRecorded = "already_recorded"
	CommitError           = "error"
)

// Pipeline contains the verification pipeline metrics. A nil *Pipeline is
// valid and records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	framesTotal      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	blinksTotal      prometheus.Counter
	commitsTotal     *prometheus.CounterVec
	enrollmentsTotal *prometheus.CounterVec
	galleryGauge     prometheus.Gauge
}

// NewPipeline creates and registers the pipeline metrics.
func NewPipeline(registry *prometheus.Registry) (*Pipeline, error) {
	m := &Pipeline{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Pipeline) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendpass_frames_total",
			Help: "Total number of frames handled by the verification loop",
		},
		[]string{"result"}, // face, no_face, degraded, no_frame
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendpass_stage_duration_seconds",
			Help:    "Time spent in each per-frame pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"stage"}, // extract, encode, match, liveness
	)

	m.sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendpass_sessions_total",
			Help: "Total number of verification sessions by terminal state and reason",
		},
		[]string{"state", "reason"},
	)

	m.sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendpass_session_duration_seconds",
			Help:    "Duration of verification sessions",
			Buckets: prometheus.LinearBuckets(1, 2, 12),
		},
		[]string{"state"},
	)

	m.blinksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendpass_blinks_total",
			Help: "Total number of completed blinks observed",
		},
	)

	m.commitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendpass_attendance_commits_total",
			Help: "Total number of attendance commits by result",
		},
		[]string{"result"}, // recorded, already_recorded, error
	)

	m.enrollmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendpass_enrollments_total",
			Help: "Total number of enrollment attempts by status",
		},
		[]string{"status"},
	)

	m.galleryGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendpass_gallery_identities",
			Help: "Number of identities in the last gallery snapshot",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *Pipeline) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.stageDuration.Describe(ch)
	m.sessionsTotal.Describe(ch)
	m.sessionDuration.Describe(ch)
	m.blinksTotal.Describe(ch)
	m.commitsTotal.Describe(ch)
	m.enrollmentsTotal.Describe(ch)
	m.galleryGauge.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Pipeline) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.stageDuration.Collect(ch)
	m.sessionsTotal.Collect(ch)
	m.sessionDuration.Collect(ch)
	m.blinksTotal.Collect(ch)
	m.commitsTotal.Collect(ch)
	m.enrollmentsTotal.Collect(ch)
	m.galleryGauge.Collect(ch)
}

// RecordFrame counts one loop iteration by result.
func (m *Pipeline) RecordFrame(result string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(result).Inc()
}

// RecordStage records the duration of one pipeline stage.
func (m *Pipeline) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSession records a finished session.
func (m *Pipeline) RecordSession(state, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(state, reason).Inc()
	m.sessionDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordBlink counts a completed blink.
func (m *Pipeline) RecordBlink() {
	if m == nil {
		return
	}
	m.blinksTotal.Inc()
}

// RecordCommit counts an attendance commit by result.
func (m *Pipeline) RecordCommit(result string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(result).Inc()
}

// RecordEnrollment counts an enrollment attempt.
func (m *Pipeline) RecordEnrollment(status string) {
	if m == nil {
		return
	}
	m.enrollmentsTotal.WithLabelValues(status).Inc()
}

// SetGallerySize records the size of the enrolled set.
func (m *Pipeline) SetGallerySize(n int) {
	if m == nil {
		return
	}
	m.galleryGauge.Set(float64(n))
}
