package reactivefs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/watch"
)

func newSource(t *testing.T) *reactivefs.Source {
	t.Helper()
	watch.DebounceWindow = 20 * time.Millisecond
	pool, err := watch.New(watch.NewOSWatcher)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return reactivefs.New(pool)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestReadFileMissingReturnsNilAndReactsToCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	src := newSource(t)

	var current *string
	task := func(_ context.Context, tr *reactive.Tracker) (*string, error) {
		return src.ReadFile(tr, path), nil
	}
	eff := reactive.NewEffect[*string](context.Background(), task, src, func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	})
	defer eff.Cancel()

	waitFor(t, func() bool { current = eff.Value().Get(); return true })
	assert.Nil(t, current)

	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	waitFor(t, func() bool {
		v := eff.Value().Get()
		return v != nil && *v == "hello"
	})
}

func TestReadDirExcludesArchiveAndHidden(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"add-caching", "archive", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	src := newSource(t)
	tr := reactive.NewTracker()
	names, err := src.ReadDir(tr, dir, reactivefs.DirOptions{
		DirectoriesOnly: true,
		Exclude:         []string{"archive"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"add-caching"}, names)
}

func TestReadDirIncludeHiddenOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".openspec.yaml"), []byte("x"), 0o644))
	src := newSource(t)
	tr := reactive.NewTracker()

	hidden, err := src.ReadDir(tr, dir, reactivefs.DirOptions{IncludeHidden: true})
	require.NoError(t, err)
	assert.Contains(t, hidden, ".openspec.yaml")

	notHidden, err := src.ReadDir(tr, dir, reactivefs.DirOptions{})
	require.NoError(t, err)
	assert.NotContains(t, notHidden, ".openspec.yaml")
}

func TestReadDirMissingDirectoryReturnsError(t *testing.T) {
	dir := t.TempDir()
	src := newSource(t)
	tr := reactive.NewTracker()

	_, err := src.ReadDir(tr, filepath.Join(dir, "does-not-exist"), reactivefs.DirOptions{})
	require.Error(t, err)
}

func TestExistsReactsToFileAppearing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	src := newSource(t)

	task := func(_ context.Context, tr *reactive.Tracker) (bool, error) {
		return src.Exists(tr, path), nil
	}
	eff := reactive.NewEffect[bool](context.Background(), task, src, func(a, b bool) bool { return a == b })
	defer eff.Cancel()

	waitFor(t, func() bool { return !eff.Value().Get() })
	require.NoError(t, os.WriteFile(path, []byte("name: x"), 0o644))
	waitFor(t, func() bool { return eff.Value().Get() })
}
