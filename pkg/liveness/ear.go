package liveness

import (
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

// Layout identifies a landmark scheme by its point count.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutDlib5          // eye corners and nose only, no eyelids
	LayoutIBUG68         // 68-point iBUG annotation
	LayoutMesh           // 468/478-point face mesh
)

// Eye contours ordered p1..p6: outer corner, two upper lid points, inner
// corner, two lower lid points.
var (
	ibugLeftEye  = [6]int{36, 37, 38, 39, 40, 41}
	ibugRightEye = [6]int{42, 43, 44, 45, 46, 47}
	meshLeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	meshRightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// DetectLayout infers the landmark scheme from the number of points.
func DetectLayout(points int) Layout {
	switch points {
	case 5:
		return LayoutDlib5
	case 68:
		return LayoutIBUG68
	case 468, 478:
		return LayoutMesh
	default:
		return LayoutUnknown
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutDlib5:
		return "dlib5"
	case LayoutIBUG68:
		return "ibug68"
	case LayoutMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// EyeAspectRatio returns (|p2-p6| + |p3-p5|) / (2|p1-p4|) for one eye.
// A zero-width eye yields 0.
func EyeAspectRatio(eye [6]vision.Point) float64 {
	v1 := vision.Distance(eye[1], eye[5])
	v2 := vision.Distance(eye[2], eye[4])
	h := vision.Distance(eye[0], eye[3])
	if h == 0 {
		return 0
	}
	return (v1 + v2) / (2 * h)
}

// EAR returns the eye aspect ratio averaged over both eyes. The second return
// is false when the landmarks carry no eyelid points.
func EAR(landmarks []vision.Point) (float64, bool) {
	var left, right [6]int
	switch DetectLayout(len(landmarks)) {
	case LayoutIBUG68:
		left, right = ibugLeftEye, ibugRightEye
	case LayoutMesh:
		left, right = meshLeftEye, meshRightEye
	default:
		return 0, false
	}

	return (EyeAspectRatio(pick(landmarks, left)) + EyeAspectRatio(pick(landmarks, right))) / 2, true
}

func pick(landmarks []vision.Point, idx [6]int) [6]vision.Point {
	var eye [6]vision.Point
	for i, j := range idx {
		eye[i] = landmarks[j]
	}
	return eye
}
