package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"golang.org/x/time/rate"
)

const (
	defaultMeshURL     = "http://localhost:8001"
	defaultMeshTimeout = 200 * time.Millisecond

	// DefaultMinIoU is the overlap required to attach mesh landmarks to a
	// detector box.
	DefaultMinIoU = 0.3

	// DefaultWarnInterval spaces out warnings about an unavailable
	// landmark service.
	DefaultWarnInterval = 30 * time.Second
)

// LandmarkSource returns dense landmarks for every face in a frame.
type LandmarkSource interface {
	Landmarks(ctx context.Context, frame camera.Frame) ([]Face, error)
}

// MeshClient queries a face mesh landmark server over HTTP.
type MeshClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewMeshClient creates a new landmark client.
func NewMeshClient(baseURL string, timeout time.Duration) *MeshClient {
	if baseURL == "" {
		baseURL = defaultMeshURL
	}
	if timeout <= 0 {
		timeout = defaultMeshTimeout
	}
	return &MeshClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

// HTTPClient exposes the underlying client so tests can intercept it.
func (c *MeshClient) HTTPClient() *http.Client {
	return c.client
}

// Check sends a blank frame to the service and reports whether it answered.
func (c *MeshClient) Check(ctx context.Context) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32)), nil); err != nil {
		return fmt.Errorf("failed to encode check frame: %w", err)
	}
	if _, err := c.Landmarks(ctx, camera.Frame{Data: buf.Bytes(), Width: 32, Height: 32}); err != nil {
		return fmt.Errorf("landmark service %s unavailable: %w", c.baseURL, err)
	}
	return nil
}

type meshFace struct {
	BBox      []float64   `json:"bbox"` // [x1, y1, x2, y2]
	Landmarks [][]float64 `json:"landmarks"`
	Score     float64     `json:"score"`
}

type meshResponse struct {
	FacesCount int        `json:"faces_count"`
	Faces      []meshFace `json:"faces"`
}

// Landmarks posts the frame to /landmarks and returns the faces it reports.
func (c *MeshClient) Landmarks(ctx context.Context, frame camera.Frame) ([]Face, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("failed to write frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/landmarks", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("landmark request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landmark server error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed meshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]Face, 0, len(parsed.Faces))
	for _, mf := range parsed.Faces {
		if len(mf.BBox) != 4 {
			continue
		}
		f := Face{
			Box: Rectangle{
				X:      int(mf.BBox[0]),
				Y:      int(mf.BBox[1]),
				Width:  int(mf.BBox[2] - mf.BBox[0]),
				Height: int(mf.BBox[3] - mf.BBox[1]),
			},
			Landmarks: make([]Point, 0, len(mf.Landmarks)),
		}
		for _, p := range mf.Landmarks {
			if len(p) < 2 {
				continue
			}
			f.Landmarks = append(f.Landmarks, Point{X: p[0], Y: p[1]})
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// MeshDetector decorates a detector with dense landmarks from a
// LandmarkSource. Boxes and descriptors come from the base detector; a face
// whose box overlaps a mesh face by at least MinIoU takes its landmarks.
// Landmark failures leave the base faces untouched and are logged as
// warnings at most once per WarnInterval.
type MeshDetector struct {
	Base         Detector
	Mesh         LandmarkSource
	MinIoU       float64
	WarnInterval time.Duration

	once       sync.Once
	warnings   *rate.Limiter
	suppressed atomic.Int64
	failing    atomic.Bool
}

// Detect implements Detector.
func (d *MeshDetector) Detect(frame camera.Frame) ([]Face, error) {
	faces, err := d.Base.Detect(frame)
	if err != nil || len(faces) == 0 {
		return faces, err
	}

	meshFaces, err := d.Mesh.Landmarks(context.Background(), frame)
	if err != nil {
		d.warn(err)
		return faces, nil
	}
	if d.failing.Swap(false) {
		logging.Component("vision").Info("Landmark service recovered")
	}

	minIoU := d.MinIoU
	if minIoU <= 0 {
		minIoU = DefaultMinIoU
	}

	for i := range faces {
		best, bestIoU := -1, minIoU
		for j, mf := range meshFaces {
			if iou := IoU(faces[i].Box, mf.Box); iou >= bestIoU {
				best, bestIoU = j, iou
			}
		}
		if best >= 0 {
			faces[i].Landmarks = meshFaces[best].Landmarks
		}
	}
	return faces, nil
}

func (d *MeshDetector) warn(err error) {
	d.failing.Store(true)
	d.once.Do(func() {
		interval := d.WarnInterval
		if interval <= 0 {
			interval = DefaultWarnInterval
		}
		d.warnings = rate.NewLimiter(rate.Every(interval), 1)
	})

	if !d.warnings.Allow() {
		d.suppressed.Add(1)
		return
	}
	logging.Component("vision").WithField("suppressed", d.suppressed.Swap(0)).
		Warnf("Landmark service unavailable, eyelid landmarks missing: %v", err)
}
