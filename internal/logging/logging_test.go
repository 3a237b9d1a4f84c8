package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avolkov-io/rsakit/internal/config"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsakit.log")

	err := Init(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		File:   config.FileLogConfig{Path: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	slog.Info("logger probe", "component", "test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"logger probe"`) {
		t.Errorf("log file missing JSON record, got: %s", data)
	}
}

func TestInitLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsakit.log")

	err := Init(&config.LoggingConfig{
		Level:  "error",
		Format: "text",
		File:   config.FileLogConfig{Path: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	slog.Debug("should be filtered")
	slog.Error("should appear")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("debug record leaked past error level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("error record missing")
	}
}
