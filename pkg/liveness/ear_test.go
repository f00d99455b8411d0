package liveness

import (
	"testing"

	"github.com/MrCodeEU/attendpass/pkg/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eye builds a 10px wide eye contour with the given aspect ratio, offset by x.
func eye(ear, x float64) [6]vision.Point {
	d := 5 * ear
	return [6]vision.Point{
		{X: x, Y: 0},
		{X: x + 3, Y: -d},
		{X: x + 7, Y: -d},
		{X: x + 10, Y: 0},
		{X: x + 7, Y: d},
		{X: x + 3, Y: d},
	}
}

func place(points []vision.Point, idx [6]int, contour [6]vision.Point) {
	for i, j := range idx {
		points[j] = contour[i]
	}
}

func make68(ear float64) []vision.Point {
	points := make([]vision.Point, 68)
	place(points, ibugLeftEye, eye(ear, 100))
	place(points, ibugRightEye, eye(ear, 200))
	return points
}

func makeMesh(n int, left, right float64) []vision.Point {
	points := make([]vision.Point, n)
	place(points, meshLeftEye, eye(left, 100))
	place(points, meshRightEye, eye(right, 200))
	return points
}

func TestEyeAspectRatio(t *testing.T) {
	assert.InDelta(t, 0.3, EyeAspectRatio(eye(0.3, 0)), 1e-9)
	assert.InDelta(t, 0.0, EyeAspectRatio(eye(0, 0)), 1e-9)

	// zero width eye
	var degenerate [6]vision.Point
	degenerate[1] = vision.Point{X: 0, Y: 1}
	assert.Equal(t, 0.0, EyeAspectRatio(degenerate))
}

func TestDetectLayout(t *testing.T) {
	tests := []struct {
		points int
		want   Layout
	}{
		{0, LayoutUnknown},
		{5, LayoutDlib5},
		{68, LayoutIBUG68},
		{468, LayoutMesh},
		{478, LayoutMesh},
		{100, LayoutUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLayout(tt.points))
		})
	}
}

func TestEAR(t *testing.T) {
	t.Run("ibug68", func(t *testing.T) {
		ear, ok := EAR(make68(0.28))
		require.True(t, ok)
		assert.InDelta(t, 0.28, ear, 1e-9)
	})

	t.Run("mesh averages both eyes", func(t *testing.T) {
		ear, ok := EAR(makeMesh(478, 0.2, 0.3))
		require.True(t, ok)
		assert.InDelta(t, 0.25, ear, 1e-9)

		ear, ok = EAR(makeMesh(468, 0.1, 0.1))
		require.True(t, ok)
		assert.InDelta(t, 0.1, ear, 1e-9)
	})

	t.Run("no eyelids", func(t *testing.T) {
		_, ok := EAR(make([]vision.Point, 5))
		assert.False(t, ok)
		_, ok = EAR(nil)
		assert.False(t, ok)
	})
}
