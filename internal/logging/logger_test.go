package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readLines(t *testing.T, dir string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logPath := filepath.Join(dir, LogFileName)
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.out != nil {
			t.Error("expected no closable output when dir is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger = %v, want nil", err)
		}
	})

	t.Run("creates nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		logger, err := NewLogger(dir, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory not created: %v", err)
		}
	})
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{LevelDebug, 4},
		{LevelInfo, 3},
		{LevelWarn, 2},
		{LevelError, 1},
		{"bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dir := t.TempDir()
			logger, err := NewLogger(dir, tt.level)
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")
			_ = logger.Close()

			if got := len(readLines(t, dir)); got != tt.want {
				t.Errorf("got %d lines at level %s, want %d", got, tt.level, tt.want)
			}
		})
	}
}

func TestChildLoggers(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithComponent("monitor").WithSubject("u1").WithCorrelation("c-1").With("tick", 3)
	child.Info("cycle complete", KeyKind, "system_proactive")
	logger.Info("root message")
	_ = logger.Close()

	lines := readLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first := lines[0]
	checks := map[string]any{
		KeyComponent:   "monitor",
		KeySubject:     "u1",
		KeyCorrelation: "c-1",
		KeyKind:        "system_proactive",
		"tick":         float64(3),
		"msg":          "cycle complete",
	}
	for k, want := range checks {
		if first[k] != want {
			t.Errorf("%s = %v, want %v", k, first[k], want)
		}
	}

	if _, ok := lines[1][KeyComponent]; ok {
		t.Error("parent logger should not inherit child attributes")
	}
}

func TestWith_IgnoresNonStringKeys(t *testing.T) {
	logger := NopLogger()
	child := logger.With(42, "value", "ok", true, "dangling")
	if len(child.attrs) != 1 || child.attrs[0].Key != "ok" {
		t.Errorf("attrs = %+v, want only ok", child.attrs)
	}
	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			logger.WithComponent("dispatch").Info("delivered", "n", i)
		})
	}
	wg.Wait()
	_ = logger.Close()

	if got := len(readLines(t, dir)); got != 20 {
		t.Errorf("got %d lines, want 20", got)
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	logger.WithComponent("x").Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"Error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}

	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}
