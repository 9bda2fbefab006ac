package plan

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// ParseDraft decodes a plan draft from YAML. JSON input is accepted too,
// since it is valid YAML.
func ParseDraft(data []byte) (models.PlanDraft, error) {
	var draft models.PlanDraft
	if err := yaml.Unmarshal(data, &draft); err != nil {
		return models.PlanDraft{}, fmt.Errorf("parse plan draft: %w", err)
	}
	return draft, nil
}

// LoadDraft reads and decodes a plan draft file.
func LoadDraft(path string) (models.PlanDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.PlanDraft{}, fmt.Errorf("read plan draft %s: %w", path, err)
	}
	return ParseDraft(data)
}
