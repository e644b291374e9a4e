package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/config"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closer, err := New(config.LoggingConfig{Level: tt.level, Format: "json"})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer closer.Close()
			if logger.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "json", FilePath: logPath})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info().Str("sensor_id", "temp-01").Msg("hello")
	logger.Debug().Msg("filtered")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), `"sensor_id":"temp-01"`) {
		t.Errorf("log file = %s, want sensor_id field", data)
	}
	if strings.Contains(string(data), "filtered") {
		t.Error("debug line should be filtered at info level")
	}
}

func TestNew_BadFilePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := New(config.LoggingConfig{FilePath: filepath.Join(blocker, "x.log")}); err == nil {
		t.Error("New expected error when log directory cannot be created")
	}
}
