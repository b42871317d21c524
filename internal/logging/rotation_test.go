package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newSmallWriter builds a RotatingWriter with a byte-sized limit so tests do
// not need to write megabytes.
func newSmallWriter(t *testing.T, limit int64, keep int, compress bool) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: keep, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.limit = limit
	return rw, path
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("picks up existing file size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(path, []byte("existing\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if rw.CurrentSize() != 9 {
			t.Errorf("CurrentSize() = %d, want 9", rw.CurrentSize())
		}
		if rw.FilePath() != path {
			t.Errorf("FilePath() = %s, want %s", rw.FilePath(), path)
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "test.log")
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	rw, path := newSmallWriter(t, 20, 2, false)

	for _, msg := range []string{"first line 0001\n", "second line 002\n", "third line 0003\n", "fourth line 004\n"} {
		if _, err := rw.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	read := func(p string) string {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(b)
	}

	if got := read(path); got != "fourth line 004\n" {
		t.Errorf("active file = %q", got)
	}
	if got := read(rw.BackupPath(1)); got != "third line 0003\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := read(rw.BackupPath(2)); got != "second line 002\n" {
		t.Errorf("backup 2 = %q", got)
	}
	if _, err := os.Stat(rw.BackupPath(3)); !os.IsNotExist(err) {
		t.Error("backups beyond MaxBackups should be removed")
	}
}

func TestRotatingWriterNoBackups(t *testing.T) {
	rw, path := newSmallWriter(t, 10, 0, false)

	_, _ = rw.Write([]byte("aaaaaaaa\n"))
	_, _ = rw.Write([]byte("bbbbbbbb\n"))
	_ = rw.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "bbbbbbbb\n" {
		t.Errorf("active file = %q, want only the latest write", b)
	}
	if _, err := os.Stat(rw.BackupPath(1)); !os.IsNotExist(err) {
		t.Error("no backup should exist when MaxBackups is 0")
	}
}

func TestRotatingWriterOversizedWrite(t *testing.T) {
	rw, path := newSmallWriter(t, 5, 1, false)

	// A single write larger than the limit into an empty file is kept whole.
	if _, err := rw.Write([]byte("larger than five\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = rw.Close()

	if _, err := os.Stat(rw.BackupPath(1)); !os.IsNotExist(err) {
		t.Error("rotating an empty file should not produce a backup")
	}
	b, _ := os.ReadFile(path)
	if string(b) != "larger than five\n" {
		t.Errorf("active file = %q", b)
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	rw, _ := newSmallWriter(t, 40, 3, true)

	for range 2 {
		_, _ = rw.Write([]byte("test message for compression test\n"))
	}
	// Close waits for background compression.
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	gzPath := rw.BackupPath(1) + ".gz"
	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	content, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if !strings.Contains(string(content), "compression test") {
		t.Errorf("decompressed content = %q", content)
	}
	if _, err := os.Stat(rw.BackupPath(1)); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	rw, _ := newSmallWriter(t, 200, 5, false)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 20 {
				if _, err := rw.Write([]byte("concurrent write\n")); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}
		})
	}
	wg.Wait()

	if rw.CurrentSize() > 200 {
		t.Errorf("CurrentSize() = %d, should stay within the limit", rw.CurrentSize())
	}
	_ = rw.Close()
}

func TestRotatingWriterClose(t *testing.T) {
	rw, _ := newSmallWriter(t, 0, 1, false)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v, want nil", err)
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLoggerWithRotation(dir, LevelDebug, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	logger.WithComponent("scheduler").Info("tick", "drained", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := readLines(t, dir)
	if len(lines) != 1 || lines[0][KeyComponent] != "scheduler" {
		t.Errorf("unexpected log lines: %v", lines)
	}

	stderrLogger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation with empty dir failed: %v", err)
	}
	if stderrLogger.out != nil {
		t.Error("empty dir should log to stderr")
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.Compress {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}
