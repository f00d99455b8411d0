package verification

import (
	"sync"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/camera"
)

// Status is the state published to the shell after each frame.
type Status struct {
	State        State     `json:"status"`
	IdentityName string    `json:"identity_name,omitempty"`
	Message      string    `json:"message,omitempty"`
	Reason       Reason    `json:"reason,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Blinks       int       `json:"blinks"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusBoard holds the latest published status and the last frame for
// display. Readers never block the verification loop for longer than a copy.
type StatusBoard struct {
	mu       sync.RWMutex
	status   Status
	frame    camera.Frame
	hasFrame bool
}

// NewStatusBoard creates a board showing an idle AWAITING_FACE status.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: Status{
		State:   StateAwaitingFace,
		Message: MessageFor(ReasonNoFace),
	}}
}

// Publish replaces the current status.
func (b *StatusBoard) Publish(s Status) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Latest returns the current status.
func (b *StatusBoard) Latest() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetFrame stores the most recent frame.
func (b *StatusBoard) SetFrame(f camera.Frame) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.frame = f
	b.hasFrame = true
	b.mu.Unlock()
}

// LastFrame returns the most recent frame, if any.
func (b *StatusBoard) LastFrame() (camera.Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame, b.hasFrame
}
