package matcher

import (
	"testing"

	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairs(t *testing.T) {
	samples := []Sample{
		{Label: "alice1", Subject: "alice", Encoding: recognition.Encoding{0, 0}},
		{Label: "alice2", Subject: "alice", Encoding: recognition.Encoding{0.3, 0.4}},
		{Label: "bob1", Subject: "bob", Encoding: recognition.Encoding{0, 0.62}},
		{Label: "odd", Subject: "odd", Encoding: recognition.Encoding{1, 2, 3}},
	}

	pairs := Pairs(samples)
	require.Len(t, pairs, 3, "mismatched dimensions are skipped")

	assert.Equal(t, "alice1", pairs[0].A)
	assert.Equal(t, "alice2", pairs[0].B)
	assert.True(t, pairs[0].Same)
	assert.InDelta(t, 0.5, pairs[0].Distance, 1e-6)

	assert.False(t, pairs[1].Same)
	assert.InDelta(t, 0.62, pairs[1].Distance, 1e-6)
}

func TestEvaluate(t *testing.T) {
	pairs := []Pair{
		{A: "alice1", B: "alice2", Same: true, Distance: 0.5},
		{A: "alice1", B: "bob1", Same: false, Distance: 0.62},
		{A: "alice2", B: "bob1", Same: false, Distance: 0.58},
		{A: "bob1", B: "bob2", Same: true, Distance: 0.66},
	}

	stats := Evaluate(pairs, []float64{0.6, 0.5, 0.7})
	require.Len(t, stats, 3)

	assert.Equal(t, ToleranceStats{Tolerance: 0.5, SamePairs: 2, OtherPairs: 2, FalseRejects: 1, FalseAccepts: 0}, stats[0])
	assert.Equal(t, ToleranceStats{Tolerance: 0.6, SamePairs: 2, OtherPairs: 2, FalseRejects: 1, FalseAccepts: 1}, stats[1])
	assert.Equal(t, ToleranceStats{Tolerance: 0.7, SamePairs: 2, OtherPairs: 2, FalseRejects: 0, FalseAccepts: 2}, stats[2])
}

func TestEvaluate_NoPairs(t *testing.T) {
	stats := Evaluate(nil, DefaultTolerances)
	require.Len(t, stats, len(DefaultTolerances))
	for _, s := range stats {
		assert.Zero(t, s.SamePairs+s.OtherPairs)
	}
}
