package cliexec_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("script fixture is POSIX-shell only")
	}
	path := filepath.Join(dir, "fake-openspec")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestProcessExecutorSuccess(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo '{"ok":true}'`)
	exec := cliexec.NewProcessExecutor(script, dir)

	result, err := exec.Execute(context.Background(), "status", "--json")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.JSONEq(t, `{"ok":true}`, result.Stdout)
}

func TestProcessExecutorNonzeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "config missing" 1>&2; exit 2`)
	exec := cliexec.NewProcessExecutor(script, dir)

	result, err := exec.Execute(context.Background(), "status", "--change", "demo")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ExitCode)
	assert.Equal(t, "config missing\n", result.Stderr)
}

func TestProcessExecutorMissingBinary(t *testing.T) {
	exec := cliexec.NewProcessExecutor(filepath.Join(t.TempDir(), "does-not-exist"), "")
	_, err := exec.Execute(context.Background(), "status")
	assert.Error(t, err)
}

func TestFakeExecutorScriptedResponses(t *testing.T) {
	fake := cliexec.NewFakeExecutor()
	fake.On(cliexec.Result{Success: true, Stdout: `{"schemas":[]}`}, "schemas")

	result, err := fake.Execute(context.Background(), "schemas")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"schemas"}, fake.Calls())

	unscripted, err := fake.Execute(context.Background(), "bogus")
	require.NoError(t, err)
	assert.False(t, unscripted.Success)
	assert.Equal(t, 127, unscripted.ExitCode)
}
