package recognition

import (
	"errors"
	"fmt"
	"math"

	"github.com/Kagami/go-face"
)

// Dim is the length of every encoding produced by the dlib ResNet model.
const Dim = len(face.Descriptor{})

// Encoding is a fixed-length face feature vector.
type Encoding []float32

// ErrNoEncodings is returned when averaging an empty set.
var ErrNoEncodings = errors.New("no encodings to average")

// ErrDimensionMismatch is returned when encodings of different lengths are combined.
var ErrDimensionMismatch = errors.New("encoding dimension mismatch")

// FromDescriptor copies a dlib descriptor into an Encoding.
func FromDescriptor(d face.Descriptor) Encoding {
	enc := make(Encoding, len(d))
	copy(enc, d[:])
	return enc
}

// EuclideanDistance calculates the Euclidean distance between two encodings.
// Encodings of different length are infinitely far apart.
func EuclideanDistance(a, b Encoding) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// AverageEncoding computes the element-wise mean of several samples of the
// same face.
func AverageEncoding(encodings []Encoding) (Encoding, error) {
	if len(encodings) == 0 {
		return nil, ErrNoEncodings
	}

	dim := len(encodings[0])
	sum := make([]float64, dim)
	for i, enc := range encodings {
		if len(enc) != dim {
			return nil, fmt.Errorf("%w: sample %d has %d values, want %d", ErrDimensionMismatch, i, len(enc), dim)
		}
		for j, v := range enc {
			sum[j] += float64(v)
		}
	}

	avg := make(Encoding, dim)
	count := float64(len(encodings))
	for j := range sum {
		avg[j] = float32(sum[j] / count)
	}
	return avg, nil
}
