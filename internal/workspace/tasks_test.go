package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

func TestToggleTaskFlipsOnlyTargetLine(t *testing.T) {
	content := "- [ ] first\n- [ ] second\n"
	out, err := workspace.ToggleTask(content, 2, true)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] first\n- [x] second\n", out)
}

func TestToggleTaskUncheck(t *testing.T) {
	content := "- [x] first\n* [X] second\n"
	out, err := workspace.ToggleTask(content, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] first\n* [X] second\n", out)
}

func TestToggleTaskIgnoresNonTaskLines(t *testing.T) {
	content := "# Tasks\n\n- [ ] first\nsome prose\n- [ ] second\n"
	out, err := workspace.ToggleTask(content, 2, true)
	require.NoError(t, err)
	assert.Equal(t, "# Tasks\n\n- [ ] first\nsome prose\n- [x] second\n", out)
}

func TestToggleTaskOutOfRange(t *testing.T) {
	_, err := workspace.ToggleTask("- [ ] only\n", 5, true)
	require.Error(t, err)
}

func TestCountTaskProgressEmpty(t *testing.T) {
	progress := workspace.CountTaskProgress("")
	assert.Equal(t, workspace.TaskProgress{Total: 0, Completed: 0}, progress)
}

func TestCountTaskProgressMixed(t *testing.T) {
	content := "- [x] done\n- [ ] todo\n* [X] also done\n"
	progress := workspace.CountTaskProgress(content)
	assert.Equal(t, workspace.TaskProgress{Total: 3, Completed: 2}, progress)
}
