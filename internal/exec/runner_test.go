package exec

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestExecRunner_RunInWorkDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/marker.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	out, err := NewRunner().Run(context.Background(), dir, "ls")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(string(out), "marker.txt") {
		t.Errorf("ls output = %q, want marker.txt", out)
	}
}

func TestExecRunner_Env(t *testing.T) {
	out, err := NewRunner("DELEGATE_SANDBOX=read-only").Run(context.Background(), "", "sh", "-c", "echo $DELEGATE_SANDBOX")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "read-only" {
		t.Errorf("output = %q, want read-only", out)
	}
}

func TestExecRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner().Run(ctx, "", "sleep", "5"); err == nil {
		t.Error("Run with cancelled context succeeded")
	}
}
