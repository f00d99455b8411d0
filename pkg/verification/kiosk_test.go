package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKiosk_Run(t *testing.T) {
	f := newFixture(t, testParams())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := repeat(face(stranger, 0.3), 25)
	frames = append(frames, blink(alice)...)

	var outcomes []Outcome
	k := NewKiosk(f.orch, f.source(frames...), time.Millisecond)
	k.OnOutcome = func(o Outcome) {
		outcomes = append(outcomes, o)
		if o.Confirmed() {
			cancel()
		}
	}

	require.NoError(t, k.Run(ctx))
	require.Len(t, outcomes, 2)
	assert.Equal(t, ReasonNoMatch, outcomes[0].Reason)
	assert.True(t, outcomes[1].Confirmed())
	assert.Equal(t, "Alice", outcomes[1].IdentityName)
	assert.Len(t, f.records(t), 1)
}

func TestKiosk_StopsOnCancel(t *testing.T) {
	f := newFixture(t, testParams())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// no clock: the source never advances time, so sessions never end
	k := NewKiosk(f.orch, &MockSource{}, time.Second)
	assert.NoError(t, k.Run(ctx))
	assert.Equal(t, StateFailed, f.board.Latest().State)
	assert.Equal(t, ReasonCancelled, f.board.Latest().Reason)
}
