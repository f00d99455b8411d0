// Package config provides configuration management for AttendPass.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all AttendPass configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Landmarks   LandmarksConfig   `yaml:"landmarks"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Session     SessionConfig     `yaml:"session"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig holds frame source settings.
type CameraConfig struct {
	SourceDir string `yaml:"source_dir"`
	FPS       int    `yaml:"fps"`
	Loop      bool   `yaml:"loop"`
}

// RecognitionConfig holds detection, encoding and matching settings.
type RecognitionConfig struct {
	ModelPath      string  `yaml:"model_path"`
	MatchThreshold float64 `yaml:"match_threshold"`
	MinFaceSize    int     `yaml:"min_face_size"`
	MaxFrameWidth  int     `yaml:"max_frame_width"`
}

// LandmarksConfig holds settings for the face-mesh landmark service.
type LandmarksConfig struct {
	MeshURL   string `yaml:"mesh_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// LivenessConfig holds the blink state machine calibration.
type LivenessConfig struct {
	EARLow           float64 `yaml:"ear_low"`
	EARHigh          float64 `yaml:"ear_high"`
	MinClosedFrames  int     `yaml:"min_closed_frames"`
	MaxClosedFrames  int     `yaml:"max_closed_frames"`
	OpenStableFrames int     `yaml:"open_stable_frames"`
	BlinkThreshold   int     `yaml:"blink_threshold"`
	WindowSeconds    int     `yaml:"window_seconds"`
	MaxGapFrames     int     `yaml:"max_gap_frames"`
}

// SessionConfig holds verification session timing.
type SessionConfig struct {
	MatchTimeoutSeconds int `yaml:"match_timeout_seconds"`
	MaxDurationSeconds  int `yaml:"max_duration_seconds"`
	FrameBudgetMS       int `yaml:"frame_budget_ms"`
	PollIntervalMS      int `yaml:"poll_interval_ms"`
	ResultHoldSeconds   int `yaml:"result_hold_seconds"`
}

// EnrollmentConfig holds enrollment capture settings.
type EnrollmentConfig struct {
	Samples        int `yaml:"samples"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DatabasePath          string `yaml:"database_path"`
	GalleryCacheTTLSecond int    `yaml:"gallery_cache_ttl_seconds"`
}

// ServerConfig holds the status/metrics HTTP server settings.
// An empty Listen address disables the server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/attendpass")
	return &Config{
		Camera: CameraConfig{
			SourceDir: filepath.Join(dataDir, "frames"),
			FPS:       15,
			Loop:      false,
		},
		Recognition: RecognitionConfig{
			ModelPath:      filepath.Join(dataDir, "models"),
			MatchThreshold: 0.6,
			MinFaceSize:    40,
			MaxFrameWidth:  1280,
		},
		Landmarks: LandmarksConfig{
			MeshURL:   "http://localhost:8001",
			TimeoutMS: 200,
		},
		Liveness: LivenessConfig{
			EARLow:           0.20,
			EARHigh:          0.25,
			MinClosedFrames:  2,
			MaxClosedFrames:  5,
			OpenStableFrames: 2,
			BlinkThreshold:   1,
			WindowSeconds:    8,
			MaxGapFrames:     15,
		},
		Session: SessionConfig{
			MatchTimeoutSeconds: 5,
			MaxDurationSeconds:  20,
			FrameBudgetMS:       150,
			PollIntervalMS:      30,
			ResultHoldSeconds:   3,
		},
		Enrollment: EnrollmentConfig{
			Samples:        5,
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			DatabasePath:          filepath.Join(dataDir, "attendance.db"),
			GalleryCacheTTLSecond: 30,
		},
		Server: ServerConfig{
			Listen: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "attendpass.log"),
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/attendpass/attendpass.yaml"); err == nil {
		return Load("/etc/attendpass/attendpass.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/attendpass/attendpass.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// ApplyEnv applies ATTENDPASS_* environment overrides on top of the loaded file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ATTENDPASS_DATABASE"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("ATTENDPASS_MESH_URL"); v != "" {
		c.Landmarks.MeshURL = v
	}
	if v := os.Getenv("ATTENDPASS_MODEL_PATH"); v != "" {
		c.Recognition.ModelPath = v
	}
	if v := os.Getenv("ATTENDPASS_SOURCE_DIR"); v != "" {
		c.Camera.SourceDir = v
	}
	if v := os.Getenv("ATTENDPASS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.FPS < 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}

	if c.Recognition.MatchThreshold <= 0 {
		return fmt.Errorf("match_threshold must be positive, got %f", c.Recognition.MatchThreshold)
	}
	if c.Recognition.MinFaceSize < 0 {
		return fmt.Errorf("min_face_size must not be negative, got %d", c.Recognition.MinFaceSize)
	}

	l := c.Liveness
	if l.EARLow <= 0 || l.EARLow >= l.EARHigh {
		return fmt.Errorf("ear thresholds must satisfy 0 < ear_low < ear_high, got %.3f / %.3f", l.EARLow, l.EARHigh)
	}
	if l.MinClosedFrames < 1 {
		return fmt.Errorf("min_closed_frames must be at least 1, got %d", l.MinClosedFrames)
	}
	if l.MaxClosedFrames != 0 && l.MaxClosedFrames < l.MinClosedFrames {
		return fmt.Errorf("max_closed_frames (%d) must be 0 or >= min_closed_frames (%d)", l.MaxClosedFrames, l.MinClosedFrames)
	}
	if l.OpenStableFrames < 1 {
		return fmt.Errorf("open_stable_frames must be at least 1, got %d", l.OpenStableFrames)
	}
	if l.BlinkThreshold < 1 {
		return fmt.Errorf("blink_threshold must be at least 1, got %d", l.BlinkThreshold)
	}
	if l.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %d", l.WindowSeconds)
	}
	if l.MaxGapFrames <= 0 {
		return fmt.Errorf("max_gap_frames must be positive, got %d", l.MaxGapFrames)
	}

	s := c.Session
	if s.MatchTimeoutSeconds <= 0 {
		return fmt.Errorf("match_timeout_seconds must be positive, got %d", s.MatchTimeoutSeconds)
	}
	if s.MaxDurationSeconds < s.MatchTimeoutSeconds {
		return fmt.Errorf("max_duration_seconds (%d) must be >= match_timeout_seconds (%d)", s.MaxDurationSeconds, s.MatchTimeoutSeconds)
	}
	if s.FrameBudgetMS < 0 || s.PollIntervalMS < 0 || s.ResultHoldSeconds < 0 {
		return fmt.Errorf("session timings must not be negative")
	}

	if c.Enrollment.Samples < 1 {
		return fmt.Errorf("enrollment samples must be at least 1, got %d", c.Enrollment.Samples)
	}
	if c.Enrollment.TimeoutSeconds <= 0 {
		return fmt.Errorf("enrollment timeout must be positive, got %d", c.Enrollment.TimeoutSeconds)
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Camera.SourceDir = ExpandPath(c.Camera.SourceDir)
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Storage.DatabasePath = ExpandPath(c.Storage.DatabasePath)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage, models and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(filepath.Dir(c.Storage.DatabasePath), 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// LivenessWindow returns the liveness window as a duration.
func (c *Config) LivenessWindow() time.Duration {
	return time.Duration(c.Liveness.WindowSeconds) * time.Second
}

// MatchTimeout returns the matching timeout as a duration.
func (c *Config) MatchTimeout() time.Duration {
	return time.Duration(c.Session.MatchTimeoutSeconds) * time.Second
}

// SessionMaxDuration returns the hard session limit as a duration.
func (c *Config) SessionMaxDuration() time.Duration {
	return time.Duration(c.Session.MaxDurationSeconds) * time.Second
}

// FrameBudget returns the soft per-frame processing budget.
func (c *Config) FrameBudget() time.Duration {
	return time.Duration(c.Session.FrameBudgetMS) * time.Millisecond
}

// PollInterval returns the delay used when the camera has no frame ready.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalMS) * time.Millisecond
}

// ResultHold returns how long a terminal status stays on screen before the next session.
func (c *Config) ResultHold() time.Duration {
	return time.Duration(c.Session.ResultHoldSeconds) * time.Second
}

// GalleryCacheTTL returns how long an enrolled-identity snapshot may be reused.
func (c *Config) GalleryCacheTTL() time.Duration {
	return time.Duration(c.Storage.GalleryCacheTTLSecond) * time.Second
}

// LandmarkTimeout returns the per-request timeout for the mesh service.
func (c *Config) LandmarkTimeout() time.Duration {
	return time.Duration(c.Landmarks.TimeoutMS) * time.Millisecond
}

// EnrollmentTimeout returns the enrollment capture timeout.
func (c *Config) EnrollmentTimeout() time.Duration {
	return time.Duration(c.Enrollment.TimeoutSeconds) * time.Second
}
