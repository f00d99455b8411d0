// Package camera provides frame acquisition for the verification loop.
// Acquisition is poll-based: a source either has a frame ready or it does not.
package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/logging"
)

// Frame represents a single camera frame.
type Frame struct {
	Data      []byte // encoded image (JPEG or PNG)
	Width     int
	Height    int
	Timestamp time.Time
}

// Empty reports whether the frame carries no usable image.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Source yields frames on demand. NextFrame never blocks waiting for the
// device; false means no frame is available yet, not end of stream.
type Source interface {
	NextFrame() (Frame, bool)
}

// ErrNoFrames is returned when a frame directory contains no images.
var ErrNoFrames = errors.New("no frames found")

// DirectorySource replays image files from a directory in name order.
type DirectorySource struct {
	files    []string
	interval time.Duration
	loop     bool
	now      func() time.Time

	mu   sync.Mutex
	next int
	last time.Time
}

// DirectoryOption configures a DirectorySource.
type DirectoryOption func(*DirectorySource)

// WithFPS paces the source; between ticks NextFrame reports no frame.
func WithFPS(fps int) DirectoryOption {
	return func(s *DirectorySource) {
		if fps > 0 {
			s.interval = time.Second / time.Duration(fps)
		}
	}
}

// WithLoop restarts from the first file after the last one.
func WithLoop(loop bool) DirectoryOption {
	return func(s *DirectorySource) { s.loop = loop }
}

// WithClock overrides the time source used for pacing and timestamps.
func WithClock(now func() time.Time) DirectoryOption {
	return func(s *DirectorySource) { s.now = now }
}

// NewDirectorySource creates a source over all JPEG/PNG files in dir.
func NewDirectorySource(dir string, opts ...DirectoryOption) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	sort.Strings(files)

	s := &DirectorySource{files: files, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	logging.Debugf("Frame source ready: %d file(s) from %s", len(files), dir)
	return s, nil
}

// Len returns the number of files in the source.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// NextFrame returns the next file as a frame. Unreadable files are skipped
// and reported as "no frame" for this call.
func (s *DirectorySource) NextFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.interval > 0 && !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return Frame{}, false
	}

	if s.next >= len(s.files) {
		if !s.loop {
			return Frame{}, false
		}
		s.next = 0
	}

	path := s.files[s.next]
	s.next++
	s.last = now

	frame, err := ReadFrame(path)
	if err != nil {
		logging.Warnf("Skipping unreadable frame %s: %v", path, err)
		return Frame{}, false
	}
	frame.Timestamp = now
	return frame, true
}

// ReadFrame loads a single image file as a frame.
func ReadFrame(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	return NewFrame(data, time.Now())
}

// NewFrame wraps encoded image bytes, reading the dimensions from the header.
func NewFrame(data []byte, ts time.Time) (Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame header: %w", err)
	}
	return Frame{
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Timestamp: ts,
	}, nil
}
