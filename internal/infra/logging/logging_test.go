package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestFileHandler_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewFileHandler(&buf, slog.LevelInfo))

	logger.Info("Cycle completed", "cycle", 3)
	logger.Debug("hidden")

	line := strings.TrimSpace(buf.String())
	pattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Cycle completed.*cycle=3$`)
	if !pattern.MatchString(line) {
		t.Errorf("Unexpected log line: %q", line)
	}
}

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(Fanout(
		NewFileHandler(&info, slog.LevelInfo),
		NewFileHandler(&debug, slog.LevelDebug),
	)).With("component", "runner")

	logger.Debug("detail")
	logger.Warn("careful")

	if strings.Contains(info.String(), "detail") {
		t.Error("Info handler should not receive debug records")
	}
	if !strings.Contains(debug.String(), "detail") || !strings.Contains(debug.String(), "careful") {
		t.Errorf("Debug handler missing records: %q", debug.String())
	}
	if !strings.Contains(info.String(), "component=runner") {
		t.Errorf("Expected attrs propagated, got %q", info.String())
	}
}

func TestSetup_CreatesComponentFiles(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	loggers, err := Setup(slog.LevelInfo, dir)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	loggers.Runner.Info("runner line")
	loggers.Recovery.Warn("recovery line")
	if err := loggers.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, name := range []string{ControllerFile, SupervisorFile, RunnerFile, MonitorFile, RecoveryFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(dir, RecoveryFile))
	if !strings.Contains(string(data), "[WARN] recovery line") {
		t.Errorf("Unexpected recovery log: %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(dir, SupervisorFile))
	if len(data) != 0 {
		t.Errorf("Expected empty supervisor log, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
