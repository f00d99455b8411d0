package matcher

import (
	"math"
	"sort"

	"github.com/MrCodeEU/attendpass/pkg/recognition"
)

// DefaultTolerances are the thresholds compared when calibrating.
var DefaultTolerances = []float64{0.5, 0.55, 0.6, 0.65, 0.7}

// Sample is a labelled encoding. Samples sharing a Subject are the same person.
type Sample struct {
	Label    string
	Subject  string
	Encoding recognition.Encoding
}

// Pair is the distance between two samples.
type Pair struct {
	A, B     string
	Same     bool
	Distance float64
}

// Accepted reports whether the pair matches at tolerance.
func (p Pair) Accepted(tolerance float64) bool {
	return p.Distance <= tolerance
}

// ToleranceStats counts how one tolerance treats the compared pairs.
// FalseRejects are same-subject pairs above it, FalseAccepts different
// subjects at or below it.
type ToleranceStats struct {
	Tolerance    float64
	SamePairs    int
	OtherPairs   int
	FalseRejects int
	FalseAccepts int
}

// Pairs compares every sample with every later one. Pairs of different
// dimension are skipped.
func Pairs(samples []Sample) []Pair {
	var pairs []Pair
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			d := recognition.EuclideanDistance(samples[i].Encoding, samples[j].Encoding)
			if d == math.MaxFloat64 {
				continue
			}
			pairs = append(pairs, Pair{
				A:        samples[i].Label,
				B:        samples[j].Label,
				Same:     samples[i].Subject == samples[j].Subject,
				Distance: d,
			})
		}
	}
	return pairs
}

// Evaluate counts false rejects and false accepts per tolerance, in
// ascending tolerance order.
func Evaluate(pairs []Pair, tolerances []float64) []ToleranceStats {
	sorted := append([]float64(nil), tolerances...)
	sort.Float64s(sorted)

	stats := make([]ToleranceStats, 0, len(sorted))
	for _, tol := range sorted {
		s := ToleranceStats{Tolerance: tol}
		for _, p := range pairs {
			if p.Same {
				s.SamePairs++
				if !p.Accepted(tol) {
					s.FalseRejects++
				}
				continue
			}
			s.OtherPairs++
			if p.Accepted(tol) {
				s.FalseAccepts++
			}
		}
		stats = append(stats, s)
	}
	return stats
}
