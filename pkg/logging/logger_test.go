package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"debug", "debug", logrus.DebugLevel},
		{"info", "info", logrus.InfoLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"error", "error", logrus.ErrorLevel},
		{"unknown defaults to info", "verbose", logrus.InfoLevel},
		{"empty defaults to info", "", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"unknown level defaults to info", "nonsense", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = newLogger(os.Stderr)
			if err := Init(tt.level, ""); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if Logger.GetLevel() != tt.want {
				t.Errorf("expected level %v, got %v", tt.want, Logger.GetLevel())
			}
		})
	}
}

func TestInitWithLogFile(t *testing.T) {
	Logger = newLogger(os.Stderr)
	logFile := filepath.Join(t.TempDir(), "nested", "attendpass.log")

	if err := Init("info", logFile); err != nil {
		t.Fatalf("Init() with log file error = %v", err)
	}
	Info("written to file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("expected log file to contain message, got %q", data)
	}
}

func TestSessionEntry(t *testing.T) {
	var buf bytes.Buffer
	Logger = newLogger(&buf)

	Session("abc-123").Info("session started")
	Component("storage").Warn("slow query")

	out := buf.String()
	for _, want := range []string{"session=abc-123", "component=verification", "component=storage"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 2 {
		t.Errorf("expected 2 log lines, got %d", lines)
	}
}
