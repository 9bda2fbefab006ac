package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/delegate/pkg/models"
)

func TestParseDraft_YAML(t *testing.T) {
	data := []byte(`
objective: refactor storage
assumptions:
  - sqlite stays
concurrency: 2
tasks:
  - id: schema
    goal: design the schema
    mode: blocking
    deliverables: [migration.sql]
  - id: code
    goal: implement the store
    dependencies: [schema]
    max_turns: 3
    max_idle_runtime_ms: 60000
`)

	d, err := ParseDraft(data)
	if err != nil {
		t.Fatalf("ParseDraft failed: %v", err)
	}
	if d.Objective != "refactor storage" || d.Concurrency != 2 {
		t.Errorf("draft header = %q/%d", d.Objective, d.Concurrency)
	}
	if len(d.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(d.Tasks))
	}
	if d.Tasks[0].Mode != models.ModeBlocking {
		t.Errorf("Tasks[0].Mode = %q, want blocking", d.Tasks[0].Mode)
	}
	if d.Tasks[1].Dependencies[0] != "schema" || d.Tasks[1].MaxTurns != 3 {
		t.Errorf("Tasks[1] = %+v", d.Tasks[1])
	}
	if d.Tasks[1].MaxIdleRuntimeMS != 60000 {
		t.Errorf("MaxIdleRuntimeMS = %d, want 60000", d.Tasks[1].MaxIdleRuntimeMS)
	}
}

func TestLoadDraft_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	content := `{"objective":"x","tasks":[{"id":"a","goal":"do a"},{"id":"b","goal":"do b","dependencies":["a"]}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write draft: %v", err)
	}

	d, err := LoadDraft(path)
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if len(d.Tasks) != 2 || d.Tasks[1].Dependencies[0] != "a" {
		t.Errorf("draft tasks = %+v", d.Tasks)
	}
}

func TestLoadDraft_MissingFile(t *testing.T) {
	if _, err := LoadDraft(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadDraft on missing file succeeded")
	}
}
