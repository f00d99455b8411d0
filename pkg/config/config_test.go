package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	// Check recognition defaults
	if cfg.Recognition.MatchThreshold != 0.6 {
		t.Errorf("expected match threshold 0.6, got %f", cfg.Recognition.MatchThreshold)
	}

	// Check liveness defaults
	if cfg.Liveness.EARLow != 0.20 {
		t.Errorf("expected ear_low 0.20, got %f", cfg.Liveness.EARLow)
	}
	if cfg.Liveness.EARHigh != 0.25 {
		t.Errorf("expected ear_high 0.25, got %f", cfg.Liveness.EARHigh)
	}
	if cfg.Liveness.MinClosedFrames != 2 {
		t.Errorf("expected min closed frames 2, got %d", cfg.Liveness.MinClosedFrames)
	}
	if cfg.Liveness.MaxClosedFrames != 5 {
		t.Errorf("expected max closed frames 5, got %d", cfg.Liveness.MaxClosedFrames)
	}
	if cfg.Liveness.BlinkThreshold != 1 {
		t.Errorf("expected blink threshold 1, got %d", cfg.Liveness.BlinkThreshold)
	}

	// Check session defaults
	if cfg.Session.MatchTimeoutSeconds != 5 {
		t.Errorf("expected match timeout 5, got %d", cfg.Session.MatchTimeoutSeconds)
	}
	if cfg.Session.MaxDurationSeconds != 20 {
		t.Errorf("expected max duration 20, got %d", cfg.Session.MaxDurationSeconds)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Server.Listen != "" {
		t.Errorf("expected status server to be disabled by default, got %s", cfg.Server.Listen)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "attendpass.yaml")
	content := `
recognition:
  match_threshold: 0.45
liveness:
  ear_low: 0.18
  ear_high: 0.27
  blink_threshold: 2
session:
  match_timeout_seconds: 7
storage:
  database_path: /tmp/attendance-test.db
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Recognition.MatchThreshold != 0.45 {
		t.Errorf("expected match threshold 0.45, got %f", cfg.Recognition.MatchThreshold)
	}
	if cfg.Liveness.EARLow != 0.18 {
		t.Errorf("expected ear_low 0.18, got %f", cfg.Liveness.EARLow)
	}
	if cfg.Liveness.EARHigh != 0.27 {
		t.Errorf("expected ear_high 0.27, got %f", cfg.Liveness.EARHigh)
	}
	if cfg.Liveness.BlinkThreshold != 2 {
		t.Errorf("expected blink threshold 2, got %d", cfg.Liveness.BlinkThreshold)
	}
	if cfg.MatchTimeout() != 7*time.Second {
		t.Errorf("expected match timeout 7s, got %v", cfg.MatchTimeout())
	}
	if cfg.Storage.DatabasePath != "/tmp/attendance-test.db" {
		t.Errorf("expected database path /tmp/attendance-test.db, got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}

	// untouched sections keep their defaults
	if cfg.Liveness.MinClosedFrames != 2 {
		t.Errorf("expected default min closed frames 2, got %d", cfg.Liveness.MinClosedFrames)
	}
	if cfg.SessionMaxDuration() != 20*time.Second {
		t.Errorf("expected default max duration 20s, got %v", cfg.SessionMaxDuration())
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for non-existent file")
	}
	if cfg == nil {
		t.Fatal("expected default config to be returned")
	}
	if cfg.Recognition.MatchThreshold != 0.6 {
		t.Errorf("expected default match threshold, got %f", cfg.Recognition.MatchThreshold)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("liveness: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"ear low above high", func(c *Config) { c.Liveness.EARLow = 0.3 }, "ear thresholds"},
		{"ear low equal high", func(c *Config) { c.Liveness.EARLow = 0.25 }, "ear thresholds"},
		{"zero ear low", func(c *Config) { c.Liveness.EARLow = 0 }, "ear thresholds"},
		{"zero min closed", func(c *Config) { c.Liveness.MinClosedFrames = 0 }, "min_closed_frames"},
		{"max closed below min", func(c *Config) { c.Liveness.MaxClosedFrames = 1 }, "max_closed_frames"},
		{"unbounded max closed", func(c *Config) { c.Liveness.MaxClosedFrames = 0 }, ""},
		{"zero open stable", func(c *Config) { c.Liveness.OpenStableFrames = 0 }, "open_stable_frames"},
		{"zero blink threshold", func(c *Config) { c.Liveness.BlinkThreshold = 0 }, "blink_threshold"},
		{"zero window", func(c *Config) { c.Liveness.WindowSeconds = 0 }, "window_seconds"},
		{"zero gap", func(c *Config) { c.Liveness.MaxGapFrames = 0 }, "max_gap_frames"},
		{"zero match threshold", func(c *Config) { c.Recognition.MatchThreshold = 0 }, "match_threshold"},
		{"zero match timeout", func(c *Config) { c.Session.MatchTimeoutSeconds = 0 }, "match_timeout_seconds"},
		{"session shorter than match", func(c *Config) { c.Session.MaxDurationSeconds = 2 }, "max_duration_seconds"},
		{"negative budget", func(c *Config) { c.Session.FrameBudgetMS = -1 }, "negative"},
		{"zero samples", func(c *Config) { c.Enrollment.Samples = 0 }, "samples"},
		{"empty database", func(c *Config) { c.Storage.DatabasePath = "" }, "database_path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ATTENDPASS_DATABASE", "/srv/attendance.db")
	t.Setenv("ATTENDPASS_MESH_URL", "http://mesh:9000")
	t.Setenv("ATTENDPASS_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Storage.DatabasePath != "/srv/attendance.db" {
		t.Errorf("expected database from env, got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Landmarks.MeshURL != "http://mesh:9000" {
		t.Errorf("expected mesh URL from env, got %s", cfg.Landmarks.MeshURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level from env, got %s", cfg.Logging.Level)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot get home directory")
	}
	t.Setenv("ATTENDPASS_TEST_DIR", "/opt/kiosk")

	tests := []struct {
		input    string
		expected string
	}{
		{"~/data/a.db", filepath.Join(homeDir, "data/a.db")},
		{"${ATTENDPASS_TEST_DIR}/a.db", "/opt/kiosk/a.db"},
		{"/abs/path", "/abs/path"},
	}

	for _, tt := range tests {
		if result := ExpandPath(tt.input); result != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmp := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.DatabasePath = filepath.Join(tmp, "db", "attendance.db")
	cfg.Recognition.ModelPath = filepath.Join(tmp, "models")
	cfg.Logging.File = filepath.Join(tmp, "logs", "attendpass.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{"db", "models", "logs"} {
		info, err := os.Stat(filepath.Join(tmp, dir))
		if err != nil {
			t.Errorf("directory %s was not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"liveness window", cfg.LivenessWindow(), 8 * time.Second},
		{"frame budget", cfg.FrameBudget(), 150 * time.Millisecond},
		{"poll interval", cfg.PollInterval(), 30 * time.Millisecond},
		{"result hold", cfg.ResultHold(), 3 * time.Second},
		{"gallery cache ttl", cfg.GalleryCacheTTL(), 30 * time.Second},
		{"landmark timeout", cfg.LandmarkTimeout(), 200 * time.Millisecond},
		{"enrollment timeout", cfg.EnrollmentTimeout(), 30 * time.Second},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
