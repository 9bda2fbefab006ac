package signals

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_KillTrips(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if w.ShouldStop() {
		t.Fatal("watcher tripped before any signal")
	}

	if err := SendKill(root); err != nil {
		t.Fatalf("SendKill failed: %v", err)
	}

	select {
	case <-w.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("kill signal not observed")
	}
	if !w.ShouldStop() {
		t.Error("ShouldStop() = false after kill")
	}
}

func TestNewWatcher_ClearsStaleKill(t *testing.T) {
	root := t.TempDir()
	if err := SendKill(root); err != nil {
		t.Fatalf("SendKill failed: %v", err)
	}

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if w.ShouldStop() {
		t.Error("stale kill file should be cleared on start")
	}
	if _, err := os.Stat(filepath.Join(Dir(root), "kill")); !os.IsNotExist(err) {
		t.Errorf("kill file still present: %v", err)
	}
}

func TestWatcher_ClearAndClose(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := SendKill(root); err != nil {
		t.Fatalf("SendKill failed: %v", err)
	}
	if !w.ShouldStop() {
		t.Error("ShouldStop() should see the kill file directly")
	}

	w.Clear()
	if _, err := os.Stat(filepath.Join(Dir(root), "kill")); !os.IsNotExist(err) {
		t.Errorf("Clear left the kill file: %v", err)
	}

	w.Close()
	w.Close()
}

func TestDir(t *testing.T) {
	if got := Dir("/repo"); got != "/repo/.delegate/signals" {
		t.Errorf("Dir() = %q, want /repo/.delegate/signals", got)
	}
}
