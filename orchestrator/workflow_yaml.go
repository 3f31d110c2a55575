package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexuskernel/orchestrator/core"
)

// yamlWorkflowStep mirrors WorkflowStep's YAML authoring shape: taskType is
// a plain string on disk and converted to core.TaskType on load.
type yamlWorkflowStep struct {
	ID        string `yaml:"id"`
	AgentName string `yaml:"agentName"`
	TaskType  string `yaml:"taskType"`
	Prompt    string `yaml:"prompt"`
}

type yamlWorkflowDefinition struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Steps       []yamlWorkflowStep  `yaml:"steps"`
}

// LoadDefinitionYAML parses a single workflow definition document, the
// teacher's format for routing/workflow authoring (pkg/routing's
// WorkflowRouter loads the same shape off disk via yaml.Unmarshal).
func LoadDefinitionYAML(data []byte) (WorkflowDefinition, error) {
	var doc yamlWorkflowDefinition
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return WorkflowDefinition{}, fmt.Errorf("parse workflow yaml: %w", err)
	}
	if doc.ID == "" {
		return WorkflowDefinition{}, fmt.Errorf("%w: workflow yaml missing id", core.ErrInvalidConfiguration)
	}

	def := WorkflowDefinition{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Steps:       make([]WorkflowStep, 0, len(doc.Steps)),
	}
	for _, s := range doc.Steps {
		def.Steps = append(def.Steps, WorkflowStep{
			ID:        s.ID,
			AgentName: s.AgentName,
			TaskType:  core.TaskType(s.TaskType),
			Prompt:    s.Prompt,
		})
	}
	return def, nil
}

// LoadDefinitionsYAMLDir loads every *.yaml/*.yml file in dir as a workflow
// definition and registers it on engine. A missing directory is not an
// error — it mirrors the teacher's "no workflows defined yet" tolerance.
// A file that fails to parse or register is skipped with its error
// collected rather than aborting the whole directory load.
func LoadDefinitionsYAMLDir(engine *Engine, dir string) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}

		def, err := LoadDefinitionYAML(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
			continue
		}

		if err := engine.RegisterWorkflow(def); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", path, err))
		}
	}
	return errs
}
