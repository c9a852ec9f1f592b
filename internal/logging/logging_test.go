package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn should be written: %s", out)
	}
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	if strings.Contains(buf.String(), `"debug"`) {
		t.Fatalf("debug should be filtered: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"info"`) {
		t.Fatalf("info should be written: %s", buf.String())
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stockwatch.log")
	var buf bytes.Buffer
	logger := newLogger(Config{
		Level: "info",
		File:  FileConfig{Enabled: true, Path: path, MaxSizeMB: 1},
	}, &buf)

	logger.Info().Str("symbol", "AAPL").Msg("tick")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if !strings.Contains(string(data), "AAPL") {
		t.Fatalf("log file missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "AAPL") {
		t.Fatalf("stdout missing entry: %s", buf.String())
	}
}
