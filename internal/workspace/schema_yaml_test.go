package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

const validSchema = `
name: change
version: "1"
description: a change schema
artifacts:
  - id: proposal
    generates: proposal.md
    description: the proposal
  - id: tasks
    generates: tasks.md
    requires: [proposal]
apply:
  requires: [tasks]
  tracks: tasks.md
  instruction: apply the change
`

func TestParseSchemaDetailNormalizes(t *testing.T) {
	detail, err := workspace.ParseSchemaDetail(validSchema)
	require.NoError(t, err)
	assert.Equal(t, "change", detail.Name)
	assert.Equal(t, "1", detail.Version)
	require.Len(t, detail.Artifacts, 2)
	assert.Equal(t, "proposal.md", detail.Artifacts[0].OutputPath)
	assert.Equal(t, []string{}, detail.Artifacts[0].Requires)
	assert.Equal(t, []string{"proposal"}, detail.Artifacts[1].Requires)
	assert.Equal(t, []string{"tasks"}, detail.ApplyRequires)
	assert.Equal(t, "tasks.md", detail.ApplyTracks)
}

func TestParseSchemaDetailMissingName(t *testing.T) {
	_, err := workspace.ParseSchemaDetail("artifacts:\n  - id: a\n    generates: a.md\n")
	require.Error(t, err)
	var verr *workspace.SchemaValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseSchemaDetailUnknownRequires(t *testing.T) {
	bad := `
name: change
artifacts:
  - id: proposal
    generates: proposal.md
    requires: [nonexistent]
`
	_, err := workspace.ParseSchemaDetail(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestParseSchemaDetailDuplicateArtifactID(t *testing.T) {
	bad := `
name: change
artifacts:
  - id: proposal
    generates: proposal.md
  - id: proposal
    generates: other.md
`
	_, err := workspace.ParseSchemaDetail(bad)
	require.Error(t, err)
}

func TestParseSchemaDetailInvalidYAML(t *testing.T) {
	_, err := workspace.ParseSchemaDetail("not: [valid: yaml")
	require.Error(t, err)
}
