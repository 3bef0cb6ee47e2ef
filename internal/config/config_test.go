package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/config"
)

func TestWorkspaceRootPrefersFlagOverEnv(t *testing.T) {
	t.Setenv(config.EnvWorkspaceRoot, "/env/root")
	root, err := config.WorkspaceRoot("/flag/root")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/flag/root"), root)
}

func TestWorkspaceRootFallsBackToEnv(t *testing.T) {
	t.Setenv(config.EnvWorkspaceRoot, "/env/root")
	root, err := config.WorkspaceRoot("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/env/root"), root)
}

func TestOpenspecPathPrefersFlagOverEnv(t *testing.T) {
	t.Setenv(config.EnvOpenspecPath, "/env/openspec")
	path, err := config.OpenspecPath("/flag/openspec")
	require.NoError(t, err)
	assert.Equal(t, "/flag/openspec", path)
}

func TestOpenspecPathUsesEnvOverride(t *testing.T) {
	t.Setenv(config.EnvOpenspecPath, "/env/openspec")
	path, err := config.OpenspecPath("")
	require.NoError(t, err)
	assert.Equal(t, "/env/openspec", path)
}
