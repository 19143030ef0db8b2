package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitionBareDependsOn(t *testing.T) {
	yaml := []byte(`
name: deploy
depends_on: [build, test]
jobs:
  run:
    steps:
      - uses: bash/exec
        with:
          command: "echo hi"
`)
	def, err := ParseDefinition(yaml, "deploy.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test"}, def.DependsOn.Workflows)
	assert.False(t, def.DependsOn.Always)
}

func TestParseDefinitionObjectDependsOn(t *testing.T) {
	yaml := []byte(`
name: cleanup
depends_on:
  workflows: [deploy]
  always: true
jobs:
  run:
    steps:
      - uses: bash/exec
        with: {command: "echo bye"}
`)
	def, err := ParseDefinition(yaml, "cleanup.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, def.DependsOn.Workflows)
	assert.True(t, def.DependsOn.Always)
}

func TestParseDefinitionRejectsMissingName(t *testing.T) {
	yaml := []byte(`
jobs:
  run:
    steps:
      - uses: bash/exec
`)
	_, err := ParseDefinition(yaml, "bad.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsMissingUses(t *testing.T) {
	yaml := []byte(`
name: bad
jobs:
  run:
    steps:
      - with: {x: 1}
`)
	_, err := ParseDefinition(yaml, "bad.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsUnknownNeeds(t *testing.T) {
	yaml := []byte(`
name: bad
jobs:
  run:
    needs: [ghost]
    steps:
      - uses: bash/exec
`)
	_, err := ParseDefinition(yaml, "bad.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsDuplicateStepID(t *testing.T) {
	yaml := []byte(`
name: bad
jobs:
  run:
    steps:
      - id: a
        uses: bash/exec
      - id: a
        uses: bash/exec
`)
	_, err := ParseDefinition(yaml, "bad.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsTriggersKey(t *testing.T) {
	yaml := []byte(`
name: bad
triggers:
  - on: push
jobs:
  run:
    steps:
      - uses: bash/exec
`)
	_, err := ParseDefinition(yaml, "bad.yaml")
	require.Error(t, err)
}

func TestDefaultRunnerConfig(t *testing.T) {
	cfg := DefaultRunnerConfig()
	assert.Equal(t, 4, cfg.Parallel)
	assert.False(t, cfg.FailFast)
}
