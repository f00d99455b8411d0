// Package verification runs verification sessions: one subject at a time,
// from the first detected face through identity matching and blink liveness
// to a single attendance commit.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/config"
	"github.com/MrCodeEU/attendpass/pkg/liveness"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
	"github.com/MrCodeEU/attendpass/pkg/metrics"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/vision"
	"github.com/google/uuid"
)

const defaultPollInterval = 30 * time.Millisecond

// Gallery provides a consistent snapshot of the enrolled set.
type Gallery interface {
	Snapshot(ctx context.Context) ([]matcher.Enrolled, error)
}

// Committer records attendance for a confirmed identity.
type Committer interface {
	Commit(ctx context.Context, identityID string, at time.Time) (attendance.Result, error)
}

// Params holds the session policy.
type Params struct {
	MatchThreshold float64
	// MatchTimeout and the liveness window both start at the first face.
	MatchTimeout time.Duration
	// MaxDuration starts when the session is created.
	MaxDuration time.Duration
	// FrameBudget is the soft per-frame budget; when landmark extraction
	// alone uses it up, matching is skipped for that frame. Matching is
	// never skipped on two frames in a row.
	FrameBudget  time.Duration
	PollInterval time.Duration
	Liveness     liveness.Params
}

// ParamsFromConfig builds the session policy from configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MatchThreshold: cfg.Recognition.MatchThreshold,
		MatchTimeout:   cfg.MatchTimeout(),
		MaxDuration:    cfg.SessionMaxDuration(),
		FrameBudget:    cfg.FrameBudget(),
		PollInterval:   cfg.PollInterval(),
		Liveness:       liveness.FromConfig(cfg.Liveness),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStatusBoard publishes every status to board.
func WithStatusBoard(board *StatusBoard) Option {
	return func(o *Orchestrator) { o.board = board }
}

// Orchestrator drives sessions. It holds no per-session state and may run
// several independent sessions.
type Orchestrator struct {
	detector  vision.Detector
	encoder   recognition.Encoder
	gallery   Gallery
	committer Committer
	params    Params

	metrics *metrics.Pipeline
	board   *StatusBoard
	now     func() time.Time
}

// New creates an orchestrator.
func New(detector vision.Detector, encoder recognition.Encoder, gallery Gallery,
	committer Committer, params Params, opts ...Option) *Orchestrator {
	if params.PollInterval <= 0 {
		params.PollInterval = defaultPollInterval
	}
	o := &Orchestrator{
		detector:  detector,
		encoder:   encoder,
		gallery:   gallery,
		committer: committer,
		params:    params,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession starts a session in AWAITING_FACE.
func (o *Orchestrator) NewSession() *Session {
	now := o.now()
	s := &Session{
		ID:       uuid.NewString(),
		state:    StateAwaitingFace,
		started:  now,
		liveness: liveness.NewState(o.params.Liveness, now),
	}
	logging.Session(s.ID).Debug("Session started")
	o.publish(s)
	return s
}

// Cancel aborts a session. The next Step ends it as FAILED/CANCELLED
// without committing. Safe to call from any goroutine.
func (o *Orchestrator) Cancel(s *Session) {
	s.cancelled.Store(true)
}

// Step processes one loop iteration. frame is nil when the source had no
// frame ready. Frame-level problems never end the session; the returned
// status is terminal once the session ended.
func (o *Orchestrator) Step(ctx context.Context, s *Session, frame *camera.Frame) Status {
	if s.state.Terminal() {
		return o.status(s)
	}

	now := o.now()
	if s.cancelled.Load() || ctx.Err() != nil {
		return o.finish(s, StateFailed, ReasonCancelled, now)
	}
	if o.params.MaxDuration > 0 && now.Sub(s.started) >= o.params.MaxDuration {
		return o.finish(s, StateTimedOut, ReasonSessionTimedOut, now)
	}

	if frame == nil || frame.Empty() {
		o.metrics.RecordFrame(metrics.FrameNoFrame)
		return o.checkDeadlines(s, now)
	}
	s.frames++
	o.board.SetFrame(*frame)

	start := o.now()
	face, found := vision.Extract(o.detector, *frame)
	elapsed := o.now().Sub(start)
	o.metrics.RecordStage("extract", elapsed)

	overBudget := found && o.params.FrameBudget > 0 && elapsed >= o.params.FrameBudget
	degraded := overBudget && !s.skippedMatch
	s.skippedMatch = degraded
	switch {
	case !found:
		o.metrics.RecordFrame(metrics.FrameNoFace)
	case degraded:
		s.degraded++
		o.metrics.RecordFrame(metrics.FrameDegraded)
	default:
		o.metrics.RecordFrame(metrics.FrameFace)
	}

	if s.state == StateAwaitingFace {
		if !found {
			return o.publish(s)
		}
		o.enterMatching(s, now)
	}

	var landmarks []vision.Point
	if found {
		landmarks = face.Landmarks
	}
	if _, ok := liveness.EAR(landmarks); found && !ok {
		s.eyeless++
	} else {
		s.eyeless = 0
	}
	if s.liveness.ObserveLandmarks(landmarks, now) {
		o.metrics.RecordBlink()
		logging.Session(s.ID).Debugf("Blink detected (%d)", s.liveness.BlinkCount())
	}

	if s.state == StateMatching {
		if found && !degraded {
			result, err := o.match(ctx, s, *frame, face)
			if err != nil {
				logging.Session(s.ID).WithError(err).Error("Failed to load enrolled identities")
				return o.finish(s, StateFailed, ReasonStoreUnavailable, now)
			}
			if result.Matched {
				o.lock(s, result)
			}
		}
		if s.state == StateMatching {
			return o.checkDeadlines(s, now)
		}
	}

	if s.liveness.Live() {
		return o.confirm(ctx, s, now)
	}
	if s.liveness.Abandoned() {
		if s.eyeless >= s.liveness.Gap() {
			// a face was there the whole time, without eyelid points
			return o.finish(s, StateFailed, ReasonEyeLandmarksUnavailable, now)
		}
		return o.finish(s, StateFailed, ReasonFaceLost, now)
	}
	return o.checkDeadlines(s, now)
}

// Run drives a new session from source until it ends. The error is non-nil
// only when ctx ended the session.
func (o *Orchestrator) Run(ctx context.Context, source camera.Source) (Outcome, error) {
	s := o.NewSession()

	ticker := time.NewTicker(o.params.PollInterval)
	defer ticker.Stop()

	for {
		var frame *camera.Frame
		if f, ok := source.NextFrame(); ok {
			frame = &f
		}

		status := o.Step(ctx, s, frame)
		if status.State.Terminal() {
			if s.reason == ReasonCancelled && ctx.Err() != nil {
				return s.Outcome(), ctx.Err()
			}
			return s.Outcome(), nil
		}

		if frame == nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}
}

func (o *Orchestrator) enterMatching(s *Session, now time.Time) {
	s.state = StateMatching
	s.faceSeen = now
	s.liveness.Reset(now)
	logging.Session(s.ID).Debug("Face detected, matching")
}

func (o *Orchestrator) lock(s *Session, result matcher.Result) {
	s.identity = result
	s.state = StateLivenessCheck
	logging.Session(s.ID).WithFields(logging.Fields{
		"identity": result.IdentityID,
		"distance": fmt.Sprintf("%.4f", result.Distance),
	}).Infof("Matched %s, checking liveness", result.Name)
}

func (o *Orchestrator) match(ctx context.Context, s *Session, frame camera.Frame, face vision.Face) (matcher.Result, error) {
	start := o.now()
	enc, ok := o.encoder.Encode(frame, face)
	o.metrics.RecordStage("encode", o.now().Sub(start))
	if !ok {
		logging.Session(s.ID).Debugf("Frame treated as unknown: %s", ReasonEncodingFailed)
		return matcher.Unknown(math.Inf(1)), nil
	}

	gallery, err := o.gallery.Snapshot(ctx)
	if err != nil {
		return matcher.Result{}, err
	}
	o.metrics.SetGallerySize(len(gallery))

	start = o.now()
	result := matcher.Match(enc, gallery, o.params.MatchThreshold)
	o.metrics.RecordStage("match", o.now().Sub(start))
	return result, nil
}

// checkDeadlines applies the per-state timeouts and publishes the status.
func (o *Orchestrator) checkDeadlines(s *Session, now time.Time) Status {
	switch s.state {
	case StateMatching:
		if now.Sub(s.faceSeen) >= o.params.MatchTimeout {
			return o.finish(s, StateFailed, ReasonNoMatch, now)
		}
	case StateLivenessCheck:
		if s.liveness.WindowExpired(now) {
			return o.finish(s, StateFailed, ReasonLivenessNotEstablished, now)
		}
	}
	return o.publish(s)
}

func (o *Orchestrator) confirm(ctx context.Context, s *Session, now time.Time) Status {
	if s.cancelled.Load() {
		return o.finish(s, StateFailed, ReasonCancelled, now)
	}

	start := o.now()
	result, err := o.committer.Commit(ctx, s.identity.IdentityID, now)
	o.metrics.RecordStage("commit", o.now().Sub(start))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return o.finish(s, StateFailed, ReasonCancelled, now)
		}
		return o.finish(s, StateFailed, ReasonStoreUnavailable, now)
	}

	s.commit = result
	reason := ReasonNone
	if result.AlreadyRecorded {
		reason = ReasonAlreadyRecorded
	}
	return o.finish(s, StateConfirmed, reason, now)
}

// finish ends the session, releases its liveness state and logs the
// terminal state once.
func (o *Orchestrator) finish(s *Session, state State, reason Reason, now time.Time) Status {
	s.state = state
	s.reason = reason
	s.ended = now
	if s.liveness != nil {
		s.blinks = s.liveness.BlinkCount()
		s.liveness = nil
	}

	duration := now.Sub(s.started)
	log := logging.Session(s.ID).WithFields(logging.Fields{
		"state":    state,
		"reason":   reason,
		"identity": s.identity.IdentityID,
		"duration": duration.Round(time.Millisecond),
	})
	switch {
	case state == StateConfirmed:
		log.Infof("Verified %s", s.identity.Name)
	case reason == ReasonLivenessNotEstablished && s.identity.Matched:
		log.Warnf("No blink from matched face %s: possible spoofing attempt", s.identity.Name)
	case s.faceSeen.IsZero():
		log.Debug("Session ended without a face")
	default:
		log.Info("Session failed")
	}

	o.metrics.RecordSession(string(state), string(reason), duration)
	return o.publish(s)
}

func (o *Orchestrator) publish(s *Session) Status {
	status := o.status(s)
	o.board.Publish(status)
	return status
}

func (o *Orchestrator) status(s *Session) Status {
	status := Status{
		State:     s.state,
		Reason:    s.reason,
		SessionID: s.ID,
		Blinks:    s.Blinks(),
		UpdatedAt: o.now(),
	}
	if s.identity.Matched && (s.state == StateLivenessCheck || s.state == StateConfirmed) {
		status.IdentityName = s.identity.Name
	}

	switch s.state {
	case StateAwaitingFace:
		status.Message = MessageFor(ReasonNoFace)
	case StateMatching:
		status.Message = "Recognizing..."
	case StateLivenessCheck:
		status.Message = fmt.Sprintf("Hello %s, please blink", s.identity.Name)
	case StateConfirmed:
		if s.commit.AlreadyRecorded {
			status.Message = fmt.Sprintf("%s: %s", s.identity.Name, MessageFor(ReasonAlreadyRecorded))
		} else {
			status.Message = fmt.Sprintf("Attendance recorded for %s", s.identity.Name)
		}
	default:
		status.Message = MessageFor(s.reason)
	}
	return status
}
