package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Failed to parse log entry %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "gdfetch.log")

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: DEBUG})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message", F("fileId", "abc"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].Level != "INFO" || entries[1].Message != "info message" {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
	if entries[1].Fields["fileId"] != "abc" {
		t.Errorf("Fields[fileId] = %v, want abc", entries[1].Fields["fileId"])
	}
}

func TestFileLogger_WithContextStampsTraceID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := ContextWithTraceID(context.Background(), "ctx-trace-789")
	logger.WithContext(ctx).Info("traced")
	logger.Info("untraced")
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].TraceID != "ctx-trace-789" {
		t.Errorf("TraceID = %q, want ctx-trace-789", entries[0].TraceID)
	}
	if entries[1].TraceID != "" {
		t.Errorf("untraced entry has TraceID %q", entries[1].TraceID)
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath:      logPath,
		Level:         INFO,
		MaxFileSize:   100,
		RotateEnabled: true,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Info("This is a test message that should trigger rotation")
	}
	logger.Close()

	files, err := filepath.Glob(filepath.Join(tempDir, "test.log*"))
	if err != nil {
		t.Fatalf("Failed to glob log files: %v", err)
	}
	if len(files) < 2 {
		t.Errorf("Expected at least 2 log files (original + rotated), got %d", len(files))
	}
}

func TestFileLogger_CloseIsIdempotent(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath: filepath.Join(t.TempDir(), "test.log"),
		Level:    INFO,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	traced := logger.WithTraceID("t")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := traced.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	traced.Info("after close")
}

func TestFileLogger_SetLevelWhileTracedCopiesLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdfetch.log")
	logger, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		traced := logger.WithTraceID(fmt.Sprintf("trace-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				traced.Debug("chunk")
			}
		}()
	}
	logger.SetLevel(ERROR)
	wg.Wait()

	traced := logger.WithTraceID("after")
	traced.Warn("filtered")
	traced.Error("kept")
	entries := readEntries(t, path)
	if n := len(entries); n != 1 || entries[0].Message != "kept" {
		t.Errorf("entries = %+v, want only the ERROR entry", entries)
	}
}
