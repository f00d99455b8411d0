package verification

import (
	"context"
	"errors"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/camera"
)

// Kiosk runs sessions back to back until its context ends.
type Kiosk struct {
	orchestrator *Orchestrator
	source       camera.Source
	hold         time.Duration

	// OnOutcome is called after every finished session.
	OnOutcome func(Outcome)
}

// NewKiosk creates a kiosk. A terminal status stays on the board for hold
// before the next session starts; sessions that never saw a face restart
// immediately.
func NewKiosk(o *Orchestrator, source camera.Source, hold time.Duration) *Kiosk {
	return &Kiosk{orchestrator: o, source: source, hold: hold}
}

// Run blocks until ctx is done.
func (k *Kiosk) Run(ctx context.Context) error {
	for {
		outcome, err := k.orchestrator.Run(ctx, k.source)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if k.OnOutcome != nil {
			k.OnOutcome(outcome)
		}

		if !outcome.FaceSeen || k.hold <= 0 {
			continue
		}
		timer := time.NewTimer(k.hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
