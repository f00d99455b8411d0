package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/storage"
	"github.com/MrCodeEU/attendpass/pkg/vision"
)

const dayLayout = "2006-01-02"

func openStore() (*storage.SQLiteStore, error) {
	store, err := storage.OpenSQLite(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Storage.DatabasePath, err)
	}
	return store, nil
}

// openDryRunStore copies the enrolled identities into memory so nothing is
// written to the database.
func openDryRunStore(ctx context.Context) (storage.Store, error) {
	db, err := openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	identities, err := db.LookupIdentities(ctx)
	if err != nil {
		return nil, err
	}

	mem := storage.NewMemoryStore()
	for _, identity := range identities {
		if _, err := mem.InsertIdentity(ctx, identity.Name, identity.Encoding); err != nil {
			return nil, err
		}
	}
	logging.Infof("Dry run: %d identities loaded, attendance is not persisted", len(identities))
	return mem, nil
}

// newEngine loads the dlib models and builds the detector chain: bounded
// frame size, then dense landmarks from the mesh service when configured.
func newEngine(ctx context.Context) (*recognition.DlibEngine, vision.Detector, error) {
	engine := recognition.NewEngine()
	engine.SetMinFaceSize(cfg.Recognition.MinFaceSize)
	if err := engine.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load recognition models (try 'attendpass models download'): %w", err)
	}

	var detector vision.Detector = vision.ScaledDetector{Base: engine, MaxWidth: cfg.Recognition.MaxFrameWidth}
	if cfg.Landmarks.MeshURL != "" {
		mesh := vision.NewMeshClient(cfg.Landmarks.MeshURL, cfg.LandmarkTimeout())
		if err := mesh.Check(ctx); err != nil {
			logging.Warnf("%v: blink liveness fails until the service is reachable", err)
		}
		detector = &vision.MeshDetector{Base: detector, Mesh: mesh}
	} else {
		logging.Warnf("No landmark service configured: 5-point landmarks carry no eyelids, blink liveness cannot pass")
	}
	return engine, detector, nil
}

func openSource(dir string) (*camera.DirectorySource, error) {
	if dir == "" {
		dir = cfg.Camera.SourceDir
	}
	source, err := camera.NewDirectorySource(dir,
		camera.WithFPS(cfg.Camera.FPS),
		camera.WithLoop(cfg.Camera.Loop))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source %s: %w", dir, err)
	}
	logging.Debugf("Frame source %s: %d frames", dir, source.Len())
	return source, nil
}

// parseDay parses YYYY-MM-DD in local time; empty means today.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	day, err := time.ParseInLocation(dayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return day, nil
}
