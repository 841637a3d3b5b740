package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw   string
		level LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{" INFO ", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevel(tt.raw)
		assert.Equal(t, tt.level, level, "level for %q", tt.raw)
		assert.Equal(t, tt.ok, ok, "ok for %q", tt.raw)
	}
}

func TestLogger_WritesSubsystemAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewForWriter(LevelInfo, &buf)

	logger.Info("test-subsystem", "test message %d", 42)
	logger.Error("Source", errors.New("boom"), "sync failed")

	output := buf.String()
	assert.Contains(t, output, "test message 42")
	assert.Contains(t, output, "subsystem=test-subsystem")
	assert.Contains(t, output, "error=boom")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewForWriter(LevelInfo, &buf)

	logger.Debug("test", "debug message")
	logger.Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("Info message should appear at INFO level")
	}
}

func TestLogger_WithAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewForWriter(LevelDebug, &buf).With("run_id", "abc")

	logger.Debug("Orchestrator", "transition")

	assert.Contains(t, buf.String(), "run_id=abc")
}

func TestLogger_SummaryFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewForWriter(LevelInfo, &buf)

	logger.Summary("Orchestrator", "Run finished", map[string]string{
		"status":  "success",
		"elapsed": "1.2s",
	})

	output := buf.String()
	assert.Contains(t, output, "Run finished")
	assert.Less(t, strings.Index(output, "elapsed="), strings.Index(output, "status="))
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("x", "y")
		logger.Summary("x", "y", nil)
		_ = logger.Close()
	})
}

func TestNew_WritesToFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := New(Options{Level: LevelInfo, Console: &console, Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("Bootstrap", "hello file")
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	assert.Contains(t, console.String(), "hello file")
	assert.FileExists(t, logFilePath(dir))
}
