package kernel_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
	"github.com/jixoai/openspecui-kernel/internal/kernel"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/watch"
)

func newTestWorkspace(t *testing.T) (root string, fs *reactivefs.Source) {
	t.Helper()
	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "openspec", "schemas", "change"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "openspec", "changes", "add-caching"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "openspec", "config.yaml"), []byte("project: demo\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "openspec", "schemas", "change", "schema.yaml"),
		[]byte("name: change\nartifacts:\n  - id: proposal\n    generates: proposal.md\n"),
		0o644,
	))

	pool, err := watch.New(watch.NewOSWatcher)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return root, reactivefs.New(pool)
}

func TestColdStartWarmupPopulatesStatusList(t *testing.T) {
	root, fs := newTestWorkspace(t)
	schemaPath := filepath.Join(root, "openspec", "schemas", "change")

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[{"name":"change"}]`}, "schemas", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{"path":"` + schemaPath + `","source":"project"}`}, "schema", "which", "change", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json", "--schema", "change")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "add-caching")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, k.Warmup(ctx))

	statusList, err := k.GetStatusList()
	require.NoError(t, err)
	require.Len(t, statusList, 1)
	assert.Equal(t, "add-caching", statusList[0].ChangeID)
	assert.Equal(t, "Add Caching", statusList[0].ChangeName)

	detail, err := k.GetSchemaDetail("change")
	require.NoError(t, err)
	assert.Equal(t, "change", detail.Name)
	require.Len(t, detail.Artifacts, 1)
	assert.Equal(t, "proposal.md", detail.Artifacts[0].OutputPath)

	resolution, err := k.GetSchemaResolution("change")
	require.NoError(t, err)
	assert.Equal(t, schemaPath, resolution.Path)

	config, err := k.GetProjectConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "project: demo\n", *config)
}

func TestSchemaFilesSurfacesDirectoryWalkError(t *testing.T) {
	root, fs := newTestWorkspace(t)
	missingSchemaPath := filepath.Join(root, "openspec", "schemas", "missing")

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[{"name":"change"}]`}, "schemas", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{"path":"` + missingSchemaPath + `","source":"project"}`}, "schema", "which", "change", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json", "--schema", "change")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "add-caching")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := k.EnsureSchemaFiles("change").WaitFirst(ctx)
	require.Error(t, err)
}

func TestEnsureSchemasReportsUnexpectedJSONShape(t *testing.T) {
	root, fs := newTestWorkspace(t)
	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[{"name":123}]`}, "schemas", "--json")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := k.EnsureSchemas().WaitFirst(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned unexpected JSON")
}

func TestEnsureSchemasReportsInvalidJSONSyntax(t *testing.T) {
	root, fs := newTestWorkspace(t)
	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `not json`}, "schemas", "--json")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := k.EnsureSchemas().WaitFirst(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned invalid JSON")
}

func TestGlobArtifactFilesMatchesNestedFiles(t *testing.T) {
	root, fs := newTestWorkspace(t)
	demo := filepath.Join(root, "openspec", "changes", "demo")
	require.NoError(t, os.MkdirAll(filepath.Join(demo, "specs", "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(demo, "specs", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(demo, "specs", "a", "spec.md"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(demo, "specs", "b", "spec.md"), []byte("B"), 0o644))

	k := kernel.New(root, fs, cliexec.NewFakeExecutor())
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	files, err := k.EnsureGlobArtifactFiles("demo", "specs/**/spec.md").WaitFirst(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "specs/a/spec.md", files[0].Path)
	assert.Equal(t, "A", files[0].Content)
	assert.Equal(t, "specs/b/spec.md", files[1].Path)
	assert.Equal(t, "B", files[1].Content)
}

func TestGetXOnNeverEnsuredKeyErrors(t *testing.T) {
	root, fs := newTestWorkspace(t)
	exec := cliexec.NewFakeExecutor()
	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	_, err := k.GetSchemaDetail("nonexistent")
	require.Error(t, err)
	var neverEnsured *kernel.NeverEnsuredError
	assert.ErrorAs(t, err, &neverEnsured)
}

func TestEnsureIsIdempotentPerKey(t *testing.T) {
	root, fs := newTestWorkspace(t)
	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[]`}, "schemas", "--json")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	first := k.EnsureSchemas()
	second := k.EnsureSchemas()
	assert.Same(t, first, second)
}

func TestDynamicChangeAdditionWarmsNewEntity(t *testing.T) {
	root, fs := newTestWorkspace(t)

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[]`}, "schemas", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"fix-login","changeName":"Fix Login","artifacts":[]}`},
		"status", "--json", "--change", "fix-login")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "fix-login")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, k.Warmup(ctx))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "openspec", "changes", "fix-login"), 0o755))

	require.Eventually(t, func() bool {
		ids, err := k.GetChangeIds()
		if err != nil {
			return false
		}
		for _, id := range ids {
			if id == "fix-login" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := k.PeekChangeStatus("fix-login", "")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	status, err := k.GetChangeStatus("fix-login", "")
	require.NoError(t, err)
	assert.Equal(t, "Fix Login", status.ChangeName)
}

func TestStatusRecoversAfterCLIFailure(t *testing.T) {
	root, fs := newTestWorkspace(t)

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: false, Stderr: "config missing", ExitCode: 2},
		"status", "--json", "--change", "add-caching")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eff := k.EnsureChangeStatus("add-caching", "")
	_, err := eff.WaitFirst(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config missing")

	// The CLI comes back; any filesystem change under the change directory
	// triggers a refetch, and the same subscription observes the new value
	// without resubscribing.
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "openspec", "changes", "add-caching", "tasks.md"),
		[]byte("- [ ] first\n"), 0o644))

	require.Eventually(t, func() bool { return eff.HasValue() }, 3*time.Second, 20*time.Millisecond)
	status, err := eff.WaitFirst(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Add Caching", status.ChangeName)
}

func TestStatusListTracksStatusChanges(t *testing.T) {
	root, fs := newTestWorkspace(t)

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[]`}, "schemas", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "add-caching")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, k.Warmup(ctx))

	statusList, err := k.GetStatusList()
	require.NoError(t, err)
	require.Len(t, statusList, 1)
	assert.Equal(t, "Add Caching", statusList[0].ChangeName)

	// A status change propagates into the aggregate without any new ensure.
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching v2","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "openspec", "changes", "add-caching", "tasks.md"),
		[]byte("- [x] first\n"), 0o644))

	require.Eventually(t, func() bool {
		list, err := k.GetStatusList()
		return err == nil && len(list) == 1 && list[0].ChangeName == "Add Caching v2"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDynamicChangeRemovalTearsDownEntity(t *testing.T) {
	root, fs := newTestWorkspace(t)

	exec := cliexec.NewFakeExecutor()
	exec.On(cliexec.Result{Success: true, Stdout: `[]`}, "schemas", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{}`}, "templates", "--json")
	exec.On(cliexec.Result{Success: true, Stdout: `{"changeId":"add-caching","changeName":"Add Caching","artifacts":[]}`},
		"status", "--json", "--change", "add-caching")
	exec.On(cliexec.Result{Success: true, Stdout: `{"requires":[],"tracks":"tasks.md","instruction":"apply it"}`},
		"instructions", "apply", "--json", "--change", "add-caching")

	k := kernel.New(root, fs, exec)
	t.Cleanup(k.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, k.Warmup(ctx))

	_, ok := k.PeekChangeStatus("add-caching", "")
	require.True(t, ok)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "openspec", "changes", "archive"), 0o755))
	require.NoError(t, os.Rename(
		filepath.Join(root, "openspec", "changes", "add-caching"),
		filepath.Join(root, "openspec", "changes", "archive", "add-caching"),
	))

	require.Eventually(t, func() bool {
		ids, err := k.GetChangeIds()
		if err != nil {
			return false
		}
		for _, id := range ids {
			if id == "add-caching" {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := k.PeekChangeStatus("add-caching", "")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}
