// Package vision turns camera frames into face observations: bounding
// regions and ordered landmark points for the single subject of a session.
package vision

import (
	"math"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
)

// Point represents a 2D landmark in frame pixel coordinates.
type Point struct {
	X, Y float64
}

// Rectangle represents a bounding box in frame pixel coordinates.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// Area returns the box area in pixels.
func (r Rectangle) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Center returns the box centre.
func (r Rectangle) Center() Point {
	return Point{
		X: float64(r.X) + float64(r.Width)/2,
		Y: float64(r.Y) + float64(r.Height)/2,
	}
}

// Inside reports whether the box lies entirely within a width x height frame.
func (r Rectangle) Inside(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0 &&
		r.X+r.Width <= width && r.Y+r.Height <= height
}

// Face is one detected face. Descriptor is set by detectors that compute the
// encoding as part of detection (dlib does); it may be nil.
type Face struct {
	Box        Rectangle
	Landmarks  []Point
	Descriptor []float32
}

// Detector finds all faces in a frame.
type Detector interface {
	Detect(frame camera.Frame) ([]Face, error)
}

// Extract returns the primary face of a frame, or false when there is none.
// Malformed frames and detector failures are reported as "no face".
func Extract(d Detector, frame camera.Frame) (Face, bool) {
	if frame.Empty() {
		return Face{}, false
	}

	faces, err := d.Detect(frame)
	if err != nil {
		logging.Component("vision").Debugf("detection failed, treating as no face: %v", err)
		return Face{}, false
	}

	return Primary(faces, frame.Width, frame.Height)
}

// Primary deterministically selects the session subject: the largest box,
// then the one closest to the frame centre, then the top-most, left-most.
func Primary(faces []Face, width, height int) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}

	center := Point{X: float64(width) / 2, Y: float64(height) / 2}
	best := 0
	for i := 1; i < len(faces); i++ {
		if better(faces[i], faces[best], center) {
			best = i
		}
	}
	return faces[best], true
}

func better(a, b Face, center Point) bool {
	if a.Box.Area() != b.Box.Area() {
		return a.Box.Area() > b.Box.Area()
	}
	da, db := distance(a.Box.Center(), center), distance(b.Box.Center(), center)
	if da != db {
		return da < db
	}
	if a.Box.Y != b.Box.Y {
		return a.Box.Y < b.Box.Y
	}
	return a.Box.X < b.Box.X
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Distance returns the Euclidean distance between two landmarks.
func Distance(a, b Point) float64 {
	return distance(a, b)
}

// IoU calculates Intersection over Union between two boxes.
func IoU(a, b Rectangle) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
