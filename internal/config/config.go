// Package config resolves the ambient settings the kernel needs to start:
// the workspace root, the openspec executable's path, and debounce tuning.
// Each setting resolves the same way: check an override, fall back to a
// well-known lookup, and return a clear error rather than panicking.
package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jixoai/openspecui-kernel/internal/watch"
)

const (
	// EnvWorkspaceRoot overrides the workspace root directory.
	EnvWorkspaceRoot = "OPENSPECUI_WORKSPACE_ROOT"
	// EnvOpenspecPath overrides the resolved openspec executable path.
	EnvOpenspecPath = "OPENSPECUI_OPENSPEC_PATH"
	// EnvDebounceMillis overrides the watcher pool's debounce window.
	EnvDebounceMillis = "OPENSPECUI_DEBOUNCE_MS"

	openspecBinaryName = "openspec"
)

// ErrOpenspecNotFound is returned when the openspec executable cannot be
// located on $PATH and no override was supplied.
var ErrOpenspecNotFound = errors.New("openspec executable not found on PATH; set " + EnvOpenspecPath)

// WorkspaceRoot resolves the project directory the kernel should treat as
// root, in order of precedence: an explicit flag value, the EnvWorkspaceRoot
// override, or the current working directory.
func WorkspaceRoot(flagValue string) (string, error) {
	root := flagValue
	if root == "" {
		root = os.Getenv(EnvWorkspaceRoot)
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = cwd
	}
	return filepath.Abs(root)
}

// OpenspecPath resolves the openspec binary, in order of precedence: an
// explicit flag value, the EnvOpenspecPath override, or a $PATH lookup.
func OpenspecPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if override := os.Getenv(EnvOpenspecPath); override != "" {
		return override, nil
	}
	path, err := exec.LookPath(openspecBinaryName)
	if err != nil {
		return "", ErrOpenspecNotFound
	}
	return path, nil
}

// ApplyDebounceOverride sets watch.DebounceWindow from EnvDebounceMillis
// when present; the window is a quality knob, not a correctness one, so an
// invalid or absent override is silently ignored.
func ApplyDebounceOverride() {
	raw := os.Getenv(EnvDebounceMillis)
	if raw == "" {
		return
	}
	ms, err := time.ParseDuration(raw + "ms")
	if err != nil || ms <= 0 {
		return
	}
	watch.DebounceWindow = ms
}
