package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugLogger_WritesTimestampedLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Log("task %s started", "a")

	line := buf.String()
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "] task a started\n") {
		t.Errorf("log line = %q, want \"[hh:mm:ss.mmm] task a started\"", line)
	}
}

func TestDebugLogger_NilIsNoop(t *testing.T) {
	var l *DebugLogger
	l.Log("ignored %d", 1)
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger = %v, want nil", err)
	}
	NopLogger().Log("also ignored")
}

func TestNewDebugLoggerForProject(t *testing.T) {
	root := t.TempDir()
	l := NewDebugLoggerForProject(root)
	l.Func()("hello %s", "world")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, ".delegate", "logs", "orchestrator-debug.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Errorf("log file missing message, got %q", data)
	}
}
