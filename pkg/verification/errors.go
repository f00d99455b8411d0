package verification

import "fmt"

// Reason identifies why a frame or session did not confirm.
type Reason string

const (
	ReasonNone Reason = ""

	// frame-level, absorbed inside the loop
	ReasonNoFace         Reason = "NO_FACE"
	ReasonEncodingFailed Reason = "ENCODING_FAILED"

	// session-level
	ReasonNoMatch                 Reason = "NO_MATCH"
	ReasonLivenessNotEstablished  Reason = "LIVENESS_NOT_ESTABLISHED"
	ReasonFaceLost                Reason = "FACE_LOST"
	ReasonEyeLandmarksUnavailable Reason = "EYE_LANDMARKS_UNAVAILABLE"
	ReasonSessionTimedOut         Reason = "SESSION_TIMED_OUT"
	ReasonStoreUnavailable        Reason = "STORE_UNAVAILABLE"
	ReasonCancelled               Reason = "CANCELLED"

	// informational
	ReasonAlreadyRecorded Reason = "ALREADY_RECORDED_TODAY"
)

// SessionError is a structured session failure.
type SessionError struct {
	Reason  Reason
	Message string
	Retry   bool
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// User-facing messages
var reasonMessages = map[Reason]string{
	ReasonNoFace:                  "Please look at the camera",
	ReasonEncodingFailed:          "Please move closer to the camera",
	ReasonNoMatch:                 "Face not recognized",
	ReasonLivenessNotEstablished:  "No blink detected. Please blink and try again",
	ReasonFaceLost:                "Face lost. Please stay in front of the camera",
	ReasonEyeLandmarksUnavailable: "Blink check unavailable: eyes are not tracked. Please contact an administrator",
	ReasonSessionTimedOut:         "Verification timed out. Please try again",
	ReasonStoreUnavailable:        "Attendance could not be saved. Please contact an administrator",
	ReasonCancelled:               "Verification cancelled",
	ReasonAlreadyRecorded:         "Attendance already recorded today",
}

// MessageFor returns the user-facing message for a reason.
func MessageFor(reason Reason) string {
	if msg, ok := reasonMessages[reason]; ok {
		return msg
	}
	return "Verification failed"
}

// Retryable reports whether a new session may succeed where this one failed.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonStoreUnavailable, ReasonCancelled, ReasonEyeLandmarksUnavailable:
		return false
	}
	return true
}

// NewSessionError creates the error for a session-level reason.
func NewSessionError(reason Reason) *SessionError {
	return &SessionError{
		Reason:  reason,
		Message: MessageFor(reason),
		Retry:   reason.Retryable(),
	}
}
