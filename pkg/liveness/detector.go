// Package liveness implements blink-based liveness detection. Successive eye
// aspect ratio samples drive an OPEN/CLOSING/CLOSED/OPENING state machine
// that counts complete blinks within a time window.
package liveness

import (
	"time"

	"github.com/MrCodeEU/attendpass/pkg/config"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

// EyeState is the blink state machine position.
type EyeState string

const (
	EyeOpen    EyeState = "OPEN"
	EyeClosing EyeState = "CLOSING"
	EyeClosed  EyeState = "CLOSED"
	EyeOpening EyeState = "OPENING"
)

// Params holds the calibration of the state machine.
type Params struct {
	EARLow           float64 // below: eyes closed
	EARHigh          float64 // above: eyes open
	MinClosedFrames  int
	MaxClosedFrames  int // 0 disables the upper bound
	OpenStableFrames int
	BlinkThreshold   int
	Window           time.Duration
	MaxGapFrames     int
}

// DefaultParams returns the default calibration.
func DefaultParams() Params {
	return FromConfig(config.DefaultConfig().Liveness)
}

// FromConfig converts the liveness configuration section.
func FromConfig(c config.LivenessConfig) Params {
	return Params{
		EARLow:           c.EARLow,
		EARHigh:          c.EARHigh,
		MinClosedFrames:  c.MinClosedFrames,
		MaxClosedFrames:  c.MaxClosedFrames,
		OpenStableFrames: c.OpenStableFrames,
		BlinkThreshold:   c.BlinkThreshold,
		Window:           time.Duration(c.WindowSeconds) * time.Second,
		MaxGapFrames:     c.MaxGapFrames,
	}
}

// Transition records one state change.
type Transition struct {
	Frame int
	From  EyeState
	To    EyeState
	EAR   float64
	Blink bool
}

// State is the per-session liveness state. It is not safe for concurrent use.
type State struct {
	params Params

	eye    EyeState
	blinks int
	closed int // consecutive frames below EARLow in the current cycle
	open   int // consecutive frames above EARHigh while opening
	held   bool

	gap    int
	frames int

	windowStart time.Time
	lastUpdate  time.Time
	liveAt      time.Time

	transitions []Transition
}

// NewState creates a state whose liveness window starts at start.
func NewState(params Params, start time.Time) *State {
	s := &State{params: params}
	s.Reset(start)
	return s
}

// Reset returns the machine to OPEN with no blinks and restarts the window.
func (s *State) Reset(start time.Time) {
	s.eye = EyeOpen
	s.blinks = 0
	s.closed = 0
	s.open = 0
	s.held = false
	s.gap = 0
	s.frames = 0
	s.windowStart = start
	s.lastUpdate = start
	s.liveAt = time.Time{}
	s.transitions = nil
}

// ObserveLandmarks computes the EAR for a face and feeds it to the machine.
// Landmarks without eyelid points count as a gap frame.
func (s *State) ObserveLandmarks(landmarks []vision.Point, now time.Time) bool {
	ear, ok := EAR(landmarks)
	return s.Observe(ear, ok, now)
}

// Observe feeds one sample. ok=false marks a frame without landmarks: the eye
// state is kept and the gap run grows. It returns true when the sample
// completed a blink.
func (s *State) Observe(ear float64, ok bool, now time.Time) bool {
	s.frames++
	s.lastUpdate = now

	if !ok {
		s.gap++
		return false
	}
	s.gap = 0

	p := s.params
	switch s.eye {
	case EyeOpen:
		if ear < p.EARLow {
			s.closed = 1
			s.held = false
			s.move(EyeClosing, ear, false)
			if s.closed >= p.MinClosedFrames {
				s.move(EyeClosed, ear, false)
			}
		}

	case EyeClosing:
		if ear < p.EARLow {
			s.closed++
			if s.closed >= p.MinClosedFrames {
				s.move(EyeClosed, ear, false)
			}
		} else {
			// too short to be a blink
			s.closed = 0
			s.move(EyeOpen, ear, false)
		}

	case EyeClosed:
		switch {
		case ear < p.EARLow:
			s.closed++
			if p.MaxClosedFrames > 0 && s.closed > p.MaxClosedFrames {
				s.held = true
			}
		case ear > p.EARHigh:
			s.open = 1
			s.move(EyeOpening, ear, false)
			return s.settle(ear, now)
		}

	case EyeOpening:
		switch {
		case ear > p.EARHigh:
			s.open++
			return s.settle(ear, now)
		case ear < p.EARLow:
			s.open = 0
			s.closed++
			if p.MaxClosedFrames > 0 && s.closed > p.MaxClosedFrames {
				s.held = true
			}
			s.move(EyeClosed, ear, false)
		default:
			// open frames must be consecutive
			s.open = 0
		}
	}
	return false
}

// settle completes the cycle once the eyes have stayed open long enough.
func (s *State) settle(ear float64, now time.Time) bool {
	if s.open < s.params.OpenStableFrames {
		return false
	}

	blink := !s.held
	s.move(EyeOpen, ear, blink)
	s.closed = 0
	s.open = 0
	s.held = false

	if !blink {
		return false
	}
	s.blinks++
	if s.blinks >= s.params.BlinkThreshold && s.liveAt.IsZero() {
		s.liveAt = now
	}
	return true
}

func (s *State) move(to EyeState, ear float64, blink bool) {
	s.transitions = append(s.transitions, Transition{
		Frame: s.frames,
		From:  s.eye,
		To:    to,
		EAR:   ear,
		Blink: blink,
	})
	s.eye = to
}

// Live reports whether the blink threshold was reached inside the window.
func (s *State) Live() bool {
	if s.liveAt.IsZero() {
		return false
	}
	return s.liveAt.Sub(s.windowStart) < s.params.Window
}

// WindowExpired reports whether the liveness window has elapsed at now.
func (s *State) WindowExpired(now time.Time) bool {
	return now.Sub(s.windowStart) >= s.params.Window
}

// Abandoned reports whether the current run of frames without landmarks
// exceeds the allowed gap.
func (s *State) Abandoned() bool {
	return s.gap > s.params.MaxGapFrames
}

// Eye returns the current eye state.
func (s *State) Eye() EyeState { return s.eye }

// BlinkCount returns the number of completed blinks.
func (s *State) BlinkCount() int { return s.blinks }

// Gap returns the current run of frames without landmarks.
func (s *State) Gap() int { return s.gap }

// WindowStart returns when the liveness window began.
func (s *State) WindowStart() time.Time { return s.windowStart }

// LastUpdate returns the time of the last observed frame.
func (s *State) LastUpdate() time.Time { return s.lastUpdate }

// Transitions returns a copy of the transition trace.
func (s *State) Transitions() []Transition {
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}
