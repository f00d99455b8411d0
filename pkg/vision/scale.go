package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"golang.org/x/image/draw"
)

const jpegQuality = 90

// Downscale shrinks a frame so its width does not exceed maxWidth and returns
// the factor that maps downscaled coordinates back to the original frame.
// Frames already within bounds are returned unchanged with factor 1.
func Downscale(frame camera.Frame, maxWidth int) (camera.Frame, float64, error) {
	if maxWidth <= 0 || frame.Width <= maxWidth {
		return frame, 1, nil
	}

	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return frame, 1, fmt.Errorf("failed to decode frame: %w", err)
	}

	scale := float64(frame.Width) / float64(maxWidth)
	height := int(float64(frame.Height) / scale)
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	data, err := encode(dst)
	if err != nil {
		return frame, 1, err
	}

	return camera.Frame{
		Data:      data,
		Width:     maxWidth,
		Height:    height,
		Timestamp: frame.Timestamp,
	}, scale, nil
}

// Crop cuts a face region out of a frame, grown by padding (a fraction of the
// box size on each side) and clipped to the frame.
func Crop(frame camera.Frame, box Rectangle, padding float64) (camera.Frame, error) {
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return camera.Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}

	padX := int(float64(box.Width) * padding)
	padY := int(float64(box.Height) * padding)
	region := image.Rect(box.X-padX, box.Y-padY, box.X+box.Width+padX, box.Y+box.Height+padY).
		Intersect(src.Bounds())
	if region.Empty() {
		return camera.Frame{}, fmt.Errorf("crop region %v outside frame", region)
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Copy(dst, image.Point{}, src, region, draw.Src, nil)

	data, err := encode(dst)
	if err != nil {
		return camera.Frame{}, err
	}

	return camera.Frame{
		Data:      data,
		Width:     region.Dx(),
		Height:    region.Dy(),
		Timestamp: frame.Timestamp,
	}, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaledDetector bounds frame width before detection and maps the results
// back to original frame coordinates.
type ScaledDetector struct {
	Base     Detector
	MaxWidth int
}

// Detect implements Detector.
func (d ScaledDetector) Detect(frame camera.Frame) ([]Face, error) {
	scaled, factor, err := Downscale(frame, d.MaxWidth)
	if err != nil {
		return nil, err
	}

	faces, err := d.Base.Detect(scaled)
	if err != nil || factor == 1 {
		return faces, err
	}

	for i := range faces {
		faces[i] = rescale(faces[i], factor)
	}
	return faces, nil
}

func rescale(f Face, factor float64) Face {
	out := Face{
		Box: Rectangle{
			X:      int(float64(f.Box.X) * factor),
			Y:      int(float64(f.Box.Y) * factor),
			Width:  int(float64(f.Box.Width) * factor),
			Height: int(float64(f.Box.Height) * factor),
		},
		Descriptor: f.Descriptor,
	}
	if len(f.Landmarks) > 0 {
		out.Landmarks = make([]Point, len(f.Landmarks))
		for i, p := range f.Landmarks {
			out.Landmarks[i] = Point{X: p.X * factor, Y: p.Y * factor}
		}
	}
	return out
}
