// Package cliexec implements the CLI executor: a JSON-emitting subprocess
// runner exposed to the kernel as a capability interface. Stdout and stderr
// are captured separately so the kernel can surface stderr verbatim when a
// subcommand fails.
package cliexec

import (
	"bytes"
	"context"
	"os/exec"
)

// Result is the CLI capability's return shape.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs `openspec` subcommands. Implementations must not block the
// caller beyond the subprocess's own lifetime. There is no built-in
// timeout; callers pass a context to bound it themselves.
type Executor interface {
	Execute(ctx context.Context, args ...string) (Result, error)
}

// ProcessExecutor is the real Executor, invoking the configured binary via
// os/exec.
type ProcessExecutor struct {
	// BinaryPath is the resolved path to the openspec executable.
	BinaryPath string
	// Dir is the working directory subcommands run in (the workspace
	// root); empty means the current process's working directory.
	Dir string
}

// NewProcessExecutor constructs an Executor bound to binaryPath and dir.
func NewProcessExecutor(binaryPath, dir string) *ProcessExecutor {
	return &ProcessExecutor{BinaryPath: binaryPath, Dir: dir}
}

// Execute runs `openspec <args...>` and reports exit status without
// treating a nonzero exit as a Go error; that distinction is the caller's
// job into the {success,stdout,stderr,exitCode} contract. A Go
// error is returned only when the process could not be started at all
// (e.g. missing executable).
func (p *ProcessExecutor) Execute(ctx context.Context, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, p.BinaryPath, args...)
	if p.Dir != "" {
		cmd.Dir = p.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runErr == nil {
		result.Success = true
		result.ExitCode = 0
		return result, nil
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.Success = false
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// The binary itself could not be started (not found, permission
	// denied, etc.). This is a capability-level failure, not a subcommand
	// failure, so it is reported as a Go error rather than Result.
	return Result{}, runErr
}
