// Package matcher finds the enrolled identity closest to a candidate encoding.
package matcher

import (
	"math"

	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
)

// tieEpsilon is the distance difference under which two identities are
// considered equally close.
const tieEpsilon = 1e-9

// Enrolled is one gallery entry.
type Enrolled struct {
	ID       string
	Name     string
	Encoding recognition.Encoding
}

// Result is the best match for a candidate, or unknown.
type Result struct {
	IdentityID string
	Name       string
	Distance   float64
	Matched    bool
}

// Unknown returns a non-matching result at the given distance.
func Unknown(distance float64) Result {
	return Result{Distance: distance}
}

// Match scans the whole gallery and returns the nearest identity when its
// distance is at most threshold. Equal distances resolve to the smallest id.
// Entries whose dimension differs from the candidate are skipped.
func Match(candidate recognition.Encoding, gallery []Enrolled, threshold float64) Result {
	best := -1
	bestDist := math.Inf(1)

	for i, entry := range gallery {
		if len(entry.Encoding) != len(candidate) {
			logging.Component("matcher").Warnf("Skipping identity %s: encoding has %d values, candidate has %d",
				entry.ID, len(entry.Encoding), len(candidate))
			continue
		}

		dist := recognition.EuclideanDistance(candidate, entry.Encoding)
		switch {
		case best < 0 || dist < bestDist-tieEpsilon:
			best, bestDist = i, dist
		case math.Abs(dist-bestDist) <= tieEpsilon && entry.ID < gallery[best].ID:
			best, bestDist = i, math.Min(dist, bestDist)
		}
	}

	if best < 0 || bestDist > threshold {
		return Unknown(bestDist)
	}

	return Result{
		IdentityID: gallery[best].ID,
		Name:       gallery[best].Name,
		Distance:   bestDist,
		Matched:    true,
	}
}
