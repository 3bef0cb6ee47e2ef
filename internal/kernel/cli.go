package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

// runJSON invokes `openspec <args...>` and decodes its stdout as T,
// translating the CLI capability's {success,stdout,stderr,exitCode} result
// into the discriminated error prefixes the kernel surfaces to subscribers:
// a nonzero exit or missing executable becomes "openspec <sub> failed",
// empty stdout becomes "... returned empty output", stdout that isn't
// well-formed JSON becomes "... returned invalid JSON", and stdout that
// parses but doesn't fit T's shape (wrong field types, a scalar where an
// object was expected) becomes "... returned unexpected JSON".
func runJSON[T any](ctx context.Context, exec cliexec.Executor, sub string, args []string) (T, error) {
	var zero T
	res, err := exec.Execute(ctx, args...)
	if err != nil {
		return zero, fmt.Errorf("openspec %s failed: %w", sub, err)
	}
	if !res.Success {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return zero, fmt.Errorf("openspec %s failed (exit %d): %s", sub, res.ExitCode, detail)
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return zero, fmt.Errorf("openspec %s returned empty output", sub)
	}
	if !json.Valid([]byte(res.Stdout)) {
		return zero, fmt.Errorf("openspec %s returned invalid JSON", sub)
	}
	var out T
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return zero, fmt.Errorf("openspec %s returned unexpected JSON: %w", sub, err)
		}
		return zero, fmt.Errorf("openspec %s returned invalid JSON: %w", sub, err)
	}
	return out, nil
}

func fetchSchemas(ctx context.Context, exec cliexec.Executor) ([]workspace.SchemaInfo, error) {
	return runJSON[[]workspace.SchemaInfo](ctx, exec, "schemas", []string{"schemas", "--json"})
}

func fetchSchemaWhich(ctx context.Context, exec cliexec.Executor, name string) (workspace.SchemaResolution, error) {
	return runJSON[workspace.SchemaResolution](ctx, exec, "schema which", []string{"schema", "which", name, "--json"})
}

func fetchTemplates(ctx context.Context, exec cliexec.Executor, schema string) (workspace.TemplatesMap, error) {
	args := []string{"templates", "--json"}
	if schema != "" {
		args = append(args, "--schema", schema)
	}
	return runJSON[workspace.TemplatesMap](ctx, exec, "templates", args)
}

func fetchStatus(ctx context.Context, exec cliexec.Executor, changeID, schema string) (workspace.ChangeStatus, error) {
	args := []string{"status", "--json", "--change", changeID}
	if schema != "" {
		args = append(args, "--schema", schema)
	}
	return runJSON[workspace.ChangeStatus](ctx, exec, "status", args)
}

func fetchInstructions(ctx context.Context, exec cliexec.Executor, artifact, changeID, schema string) (workspace.ArtifactInstructions, error) {
	args := []string{"instructions", artifact, "--json", "--change", changeID}
	if schema != "" {
		args = append(args, "--schema", schema)
	}
	return runJSON[workspace.ArtifactInstructions](ctx, exec, "instructions", args)
}

func fetchApplyInstructions(ctx context.Context, exec cliexec.Executor, changeID, schema string) (workspace.ApplyInstructions, error) {
	args := []string{"instructions", "apply", "--json", "--change", changeID}
	if schema != "" {
		args = append(args, "--schema", schema)
	}
	return runJSON[workspace.ApplyInstructions](ctx, exec, "instructions apply", args)
}
