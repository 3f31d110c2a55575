package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkflowYAML = `
id: wf-research-brief
name: Research Brief
description: Gather findings then draft a brief.
steps:
  - id: research
    agentName: researcher
    taskType: research
    prompt: "Find background on {{.topic}}"
  - id: draft
    agentName: writer
    taskType: documentation
    prompt: "Draft a brief from the findings"
`

func TestLoadDefinitionYAML(t *testing.T) {
	def, err := LoadDefinitionYAML([]byte(sampleWorkflowYAML))
	require.NoError(t, err)
	assert.Equal(t, "wf-research-brief", def.ID)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "researcher", def.Steps[0].AgentName)
	assert.Equal(t, core.TaskTypeResearch, def.Steps[0].TaskType)
}

func TestLoadDefinitionYAML_MissingIDIsError(t *testing.T) {
	_, err := LoadDefinitionYAML([]byte("name: no id here\n"))
	require.Error(t, err)
}

func TestLoadDefinitionsYAMLDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brief.yaml"), []byte(sampleWorkflowYAML), 0o644))

	registry := New(nil, nil, 30*time.Second, core.DefaultRetryPolicy(), core.DefaultBreakerConfig(), 100)
	engine := NewEngine(registry, nil, nil, 100)

	errs := LoadDefinitionsYAMLDir(engine, dir)
	assert.Empty(t, errs)

	_, ok := engine.definition("wf-research-brief")
	assert.True(t, ok)
}

func TestLoadDefinitionsYAMLDir_MissingDirIsNotAnError(t *testing.T) {
	registry := New(nil, nil, 30*time.Second, core.DefaultRetryPolicy(), core.DefaultBreakerConfig(), 100)
	engine := NewEngine(registry, nil, nil, 100)

	errs := LoadDefinitionsYAMLDir(engine, "/nonexistent/path/does/not/exist")
	assert.Empty(t, errs)
}
