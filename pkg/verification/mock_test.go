package verification

import (
	"context"
	"sync"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 9, 2, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MockSource replays frames, advancing the clock by one frame interval per
// call whether or not a frame is available.
type MockSource struct {
	mu       sync.Mutex
	clock    *fakeClock
	interval time.Duration
	frames   []camera.Frame
	next     int
}

func (m *MockSource) NextFrame() (camera.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clock != nil {
		m.clock.Advance(m.interval)
	}
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

type MockGallery struct {
	mu           sync.Mutex
	calls        int
	SnapshotFunc func(ctx context.Context) ([]matcher.Enrolled, error)
}

func (m *MockGallery) Snapshot(ctx context.Context) ([]matcher.Enrolled, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return nil, nil
}

func (m *MockGallery) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockCommitter struct {
	mu         sync.Mutex
	calls      []string
	CommitFunc func(ctx context.Context, identityID string, at time.Time) (attendance.Result, error)
}

func (m *MockCommitter) Commit(ctx context.Context, identityID string, at time.Time) (attendance.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, identityID)
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, identityID, at)
	}
	return attendance.Result{}, nil
}

func (m *MockCommitter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
