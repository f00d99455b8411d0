package verification

import (
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/MrCodeEU/attendpass/pkg/liveness"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
)

// State is the position of a session in the verification state machine.
type State string

const (
	StateAwaitingFace  State = "AWAITING_FACE"
	StateMatching      State = "MATCHING"
	StateLivenessCheck State = "LIVENESS_CHECK"
	StateConfirmed     State = "CONFIRMED"
	StateFailed        State = "FAILED"
	StateTimedOut      State = "TIMED_OUT"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// Session is one bounded attempt to verify a single subject. All mutable
// state lives here so independent sessions never share anything. A session
// is driven by one goroutine; only Cancel may be called concurrently.
type Session struct {
	ID string

	state    State
	reason   Reason
	identity matcher.Result
	liveness *liveness.State
	blinks   int

	started   time.Time
	faceSeen  time.Time
	ended     time.Time
	frames    int
	degraded  int
	cancelled atomic.Bool

	// skippedMatch is set when the previous frame skipped matching.
	skippedMatch bool
	// eyeless counts consecutive frames with a face but no eyelid landmarks.
	eyeless      int

	commit attendance.Result
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Reason returns the terminal reason, if any.
func (s *Session) Reason() Reason { return s.reason }

// Identity returns the locked match; Matched is false before MATCHING ends.
func (s *Session) Identity() matcher.Result { return s.identity }

// Blinks returns the completed blinks observed so far.
func (s *Session) Blinks() int {
	if s.liveness != nil {
		return s.liveness.BlinkCount()
	}
	return s.blinks
}

// Frames returns the number of frames processed and how many of them were
// degraded.
func (s *Session) Frames() (total, degraded int) { return s.frames, s.degraded }

// Liveness exposes the liveness state. It is nil once the session ended.
func (s *Session) Liveness() *liveness.State { return s.liveness }

// Outcome summarizes a finished session for the caller.
type Outcome struct {
	SessionID       string
	State           State
	Reason          Reason
	IdentityID      string
	IdentityName    string
	Distance        float64
	Blinks          int
	FaceSeen        bool
	AlreadyRecorded bool
	Record          attendance.Result
	Duration        time.Duration
	// Err is set for every session that did not confirm. TIMED_OUT carries
	// a SessionError like any other failure.
	Err *SessionError
}

// Confirmed reports whether the subject was verified.
func (o Outcome) Confirmed() bool { return o.State == StateConfirmed }

// Outcome returns the session summary. It is meaningful once the state is
// terminal.
func (s *Session) Outcome() Outcome {
	out := Outcome{
		SessionID:       s.ID,
		State:           s.state,
		Reason:          s.reason,
		Blinks:          s.Blinks(),
		FaceSeen:        !s.faceSeen.IsZero(),
		AlreadyRecorded: s.commit.AlreadyRecorded,
		Record:          s.commit,
		Duration:        s.ended.Sub(s.started),
	}
	// a failed session discards the match
	if s.identity.Matched && s.state == StateConfirmed {
		out.IdentityID = s.identity.IdentityID
		out.IdentityName = s.identity.Name
		out.Distance = s.identity.Distance
	}
	if s.state == StateFailed || s.state == StateTimedOut {
		out.Err = NewSessionError(s.reason)
	}
	return out
}
