// Package recognition provides face detection and encoding.
// It uses dlib/go-face for face detection, 5-point shapes, and 128-d descriptors.
package recognition

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

// DefaultMinFaceSize is the smallest face side, in pixels, that is encoded.
const DefaultMinFaceSize = 40

// cropPadding grows a face box before it is re-encoded on its own.
const cropPadding = 0.25

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// FaceEngine is the subset of the go-face recognizer the engine needs.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	RecognizeSingle(imgData []byte) (*face.Face, error)
	Close()
}

// Encoder maps a detected face region to an encoding. The second return is
// false when the region cannot be encoded.
type Encoder interface {
	Encode(frame camera.Frame, f vision.Face) (Encoding, bool)
}

// DlibEngine implements vision.Detector and Encoder on top of dlib.
type DlibEngine struct {
	engine      FaceEngine
	factory     func(path string) (FaceEngine, error)
	modelPath   string
	loaded      bool
	minFaceSize int
	mu          sync.RWMutex
}

// NewEngine creates an engine; call LoadModels before use.
func NewEngine() *DlibEngine {
	return &DlibEngine{
		factory:     newDlibRecognizer,
		minFaceSize: DefaultMinFaceSize,
	}
}

func newDlibRecognizer(path string) (FaceEngine, error) {
	rec, err := face.NewRecognizer(path)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetMinFaceSize sets the minimum face width and height that is detected and encoded.
func (e *DlibEngine) SetMinFaceSize(size int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if size > 0 {
		e.minFaceSize = size
	}
}

// LoadModels loads the dlib models from modelPath. The directory must contain
// shape_predictor_5_face_landmarks.dat and dlib_face_recognition_resnet_model_v1.dat.
func (e *DlibEngine) LoadModels(modelPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}

	logging.Infof("Loading face recognition models from: %s", modelPath)

	engine, err := e.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	e.engine = engine
	e.modelPath = modelPath
	e.loaded = true

	logging.Info("Face recognition models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (e *DlibEngine) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Close releases the recognizer resources.
func (e *DlibEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine != nil {
		e.engine.Close()
		e.engine = nil
	}
	e.loaded = false
	return nil
}

// Detect returns every face of at least the minimum size, with dlib's
// 5-point shapes and descriptors. No face is an empty result, not an error.
func (e *DlibEngine) Detect(frame camera.Frame) ([]vision.Face, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.loaded {
		return nil, ErrModelNotLoaded
	}

	found, err := e.engine.Recognize(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	faces := make([]vision.Face, 0, len(found))
	for _, f := range found {
		converted := convert(f)
		if converted.Box.Width < e.minFaceSize || converted.Box.Height < e.minFaceSize {
			continue
		}
		faces = append(faces, converted)
	}

	if dropped := len(found) - len(faces); dropped > 0 {
		logging.Debugf("Ignored %d face(s) below %dpx", dropped, e.minFaceSize)
	}
	return faces, nil
}

// Encode returns the encoding for a face region. Regions that are too small
// or not fully inside the frame are not encoded.
func (e *DlibEngine) Encode(frame camera.Frame, f vision.Face) (Encoding, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if f.Box.Width < e.minFaceSize || f.Box.Height < e.minFaceSize {
		return nil, false
	}
	if !f.Box.Inside(frame.Width, frame.Height) {
		return nil, false
	}

	if len(f.Descriptor) == Dim {
		enc := make(Encoding, Dim)
		copy(enc, f.Descriptor)
		return enc, true
	}

	if !e.loaded {
		return nil, false
	}

	crop, err := vision.Crop(frame, f.Box, cropPadding)
	if err != nil {
		logging.Debugf("Encoding crop failed: %v", err)
		return nil, false
	}

	single, err := e.engine.RecognizeSingle(crop.Data)
	if err != nil || single == nil {
		return nil, false
	}
	return FromDescriptor(single.Descriptor), true
}

func convert(f face.Face) vision.Face {
	rect := f.Rectangle
	out := vision.Face{
		Box: vision.Rectangle{
			X:      rect.Min.X,
			Y:      rect.Min.Y,
			Width:  rect.Dx(),
			Height: rect.Dy(),
		},
		Descriptor: FromDescriptor(f.Descriptor),
	}
	if len(f.Shapes) > 0 {
		out.Landmarks = make([]vision.Point, len(f.Shapes))
		for i, p := range f.Shapes {
			out.Landmarks[i] = vision.Point{X: float64(p.X), Y: float64(p.Y)}
		}
	}
	return out
}
