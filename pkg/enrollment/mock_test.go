package enrollment

import (
	"sync"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

type MockSource struct {
	mu     sync.Mutex
	frames []camera.Frame
	next   int
}

func (m *MockSource) NextFrame() (camera.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next >= len(m.frames) {
		return camera.Frame{}, false
	}
	f := m.frames[m.next]
	m.next++
	return f, true
}

type MockDetector struct {
	DetectFunc func(frame camera.Frame) ([]vision.Face, error)
}

func (m *MockDetector) Detect(frame camera.Frame) ([]vision.Face, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return nil, nil
}

type MockEncoder struct {
	EncodeFunc func(frame camera.Frame, f vision.Face) (recognition.Encoding, bool)
}

func (m *MockEncoder) Encode(frame camera.Frame, f vision.Face) (recognition.Encoding, bool) {
	if m.EncodeFunc != nil {
		return m.EncodeFunc(frame, f)
	}
	return nil, false
}
