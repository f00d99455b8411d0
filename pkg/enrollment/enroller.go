// Package enrollment captures a new identity from a frame source.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
	"github.com/MrCodeEU/attendpass/pkg/metrics"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/storage"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

const defaultPollInterval = 30 * time.Millisecond

var (
	// ErrEmptyName is returned when no display name is given.
	ErrEmptyName = errors.New("display name is required")
	// ErrNoFaceDetected is returned for a sample frame without a face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrMultipleFaces is returned for a sample frame with more than one face.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrEncodingFailed is returned when the face region cannot be encoded.
	ErrEncodingFailed = errors.New("face could not be encoded")
	// ErrIncomplete is returned when the source or context ends before
	// enough samples were collected.
	ErrIncomplete = errors.New("not enough samples collected")
	// ErrAmbiguousIdentity is returned when the new face already matches a
	// differently named identity.
	ErrAmbiguousIdentity = errors.New("face matches an existing identity")
)

// Options configures an Enroller.
type Options struct {
	Samples        int
	MatchThreshold float64
	PollInterval   time.Duration
	// OnSample is called after each accepted sample.
	OnSample func(collected, total int)
	// OnReject is called for each frame rejected as a sample.
	OnReject func(err error)
}

// Enroller collects face samples and stores the averaged encoding.
type Enroller struct {
	detector vision.Detector
	encoder  recognition.Encoder
	store    storage.Store
	gallery  *matcher.Gallery
	metrics  *metrics.Pipeline
	opts     Options
}

// New creates an Enroller. gallery and m may be nil.
func New(detector vision.Detector, encoder recognition.Encoder, store storage.Store,
	gallery *matcher.Gallery, m *metrics.Pipeline, opts Options) *Enroller {
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Enroller{
		detector: detector,
		encoder:  encoder,
		store:    store,
		gallery:  gallery,
		metrics:  m,
		opts:     opts,
	}
}

// Sample encodes a frame that must contain exactly one face.
func (e *Enroller) Sample(frame camera.Frame) (recognition.Encoding, error) {
	if frame.Empty() {
		return nil, ErrNoFaceDetected
	}

	faces, err := e.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFaceDetected, err)
	}
	switch {
	case len(faces) == 0:
		return nil, ErrNoFaceDetected
	case len(faces) > 1:
		return nil, ErrMultipleFaces
	}

	enc, ok := e.encoder.Encode(frame, faces[0])
	if !ok {
		return nil, ErrEncodingFailed
	}
	return enc, nil
}

// Enroll collects the configured number of samples from source, averages
// them and inserts a new identity. Re-enrolling an existing name creates a
// new identity; a face that already matches a different name is rejected.
func (e *Enroller) Enroll(ctx context.Context, name string, source camera.Source) (storage.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Identity{}, ErrEmptyName
	}

	log := logging.Component("enrollment").WithField("name", name)
	log.Infof("Starting enrollment (%d samples)", e.opts.Samples)

	samples, err := e.collect(ctx, source)
	if err != nil {
		e.metrics.RecordEnrollment("incomplete")
		return storage.Identity{}, err
	}

	encoding, err := recognition.AverageEncoding(samples)
	if err != nil {
		e.metrics.RecordEnrollment("failed")
		return storage.Identity{}, err
	}

	if err := e.checkAmbiguous(ctx, name, encoding); err != nil {
		e.metrics.RecordEnrollment("rejected")
		return storage.Identity{}, err
	}

	identity, err := e.store.InsertIdentity(ctx, name, encoding)
	if err != nil {
		e.metrics.RecordEnrollment("failed")
		return storage.Identity{}, fmt.Errorf("failed to store identity: %w", err)
	}

	if e.gallery != nil {
		e.gallery.Invalidate()
	}
	e.metrics.RecordEnrollment("success")
	log.WithField("identity", identity.ID).Info("Enrollment complete")
	return identity, nil
}

func (e *Enroller) collect(ctx context.Context, source camera.Source) ([]recognition.Encoding, error) {
	total := e.opts.Samples
	samples := make([]recognition.Encoding, 0, total)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for len(samples) < total {
		frame, ok := source.NextFrame()
		if !ok {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %d of %d: %v", ErrIncomplete, len(samples), total, ctx.Err())
			case <-ticker.C:
			}
			continue
		}

		enc, err := e.Sample(frame)
		if err != nil {
			logging.Debugf("Enrollment frame rejected: %v", err)
			if e.opts.OnReject != nil {
				e.opts.OnReject(err)
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %d of %d: %v", ErrIncomplete, len(samples), total, ctx.Err())
			}
			continue
		}

		samples = append(samples, enc)
		if e.opts.OnSample != nil {
			e.opts.OnSample(len(samples), total)
		}
	}
	return samples, nil
}

func (e *Enroller) checkAmbiguous(ctx context.Context, name string, encoding recognition.Encoding) error {
	identities, err := e.store.LookupIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	gallery := make([]matcher.Enrolled, 0, len(identities))
	for _, identity := range identities {
		if identity.Name == name {
			continue
		}
		gallery = append(gallery, matcher.Enrolled{ID: identity.ID, Name: identity.Name, Encoding: identity.Encoding})
	}

	if result := matcher.Match(encoding, gallery, e.opts.MatchThreshold); result.Matched {
		return fmt.Errorf("%w: %s (distance %.3f)", ErrAmbiguousIdentity, result.Name, result.Distance)
	}
	return nil
}
