// Package kernel implements the reactive kernel: it owns every NamedState,
// runs the phased warm-up, manages schema/change entity lifecycles, and
// exposes the ensureX/getX/peekX APIs the RPC surface is built on.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

// Kernel is the process-wide owner of every reactive NamedState derived
// from one workspace root.
type Kernel struct {
	root string
	fs   *reactivefs.Source
	cli  cliexec.Executor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	states   map[string]stateHandle
	entities map[string]*entityController

	warmMu      sync.Mutex
	warmStarted bool
	warmDone    chan struct{}
	warmErr     error
}

// New constructs a Kernel rooted at root (the project directory containing
// an openspec/ subdirectory), backed by fs for reactive filesystem reads and
// cli for openspec subcommand invocations. Call Warmup to start it.
func New(root string, fs *reactivefs.Source, cli cliexec.Executor) *Kernel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Kernel{
		root:     root,
		fs:       fs,
		cli:      cli,
		ctx:      ctx,
		cancel:   cancel,
		states:   make(map[string]stateHandle),
		entities: make(map[string]*entityController),
		warmDone: make(chan struct{}),
	}
}

// Close cancels every Effect the Kernel has ever started.
func (k *Kernel) Close() {
	k.cancel()
}

func (k *Kernel) changesDir() string {
	return filepath.Join(k.root, "openspec", "changes")
}

func (k *Kernel) changeDir(id string) string {
	return filepath.Join(k.changesDir(), id)
}

func (k *Kernel) configPath() string {
	return filepath.Join(k.root, "openspec", "config.yaml")
}

func (k *Kernel) schemasDir() string {
	return filepath.Join(k.root, "openspec", "schemas")
}

// trackDirTree enlists a whole directory subtree as a dependency of the
// current run. CLI-backed tasks use it: the openspec CLI derives its answers
// from the workspace's files, so a change anywhere under the relevant tree
// is the signal to invoke it again.
func trackDirTree(tr *reactive.Tracker, dir string) {
	tr.Track(reactive.Dependency{
		Watcher: reactive.WatcherKey{Path: dir, Recursive: true},
		Op:      "cli",
		Path:    dir,
	})
}

// ---------------------------------------------------------------------
// global: schemas
// ---------------------------------------------------------------------

func (k *Kernel) EnsureSchemas() *reactive.Effect[[]workspace.SchemaInfo] {
	task := func(ctx context.Context, tr *reactive.Tracker) ([]workspace.SchemaInfo, error) {
		trackDirTree(tr, k.schemasDir())
		return fetchSchemas(ctx, k.cli)
	}
	return ensureState(k, k.ctx, globalKey("schemas"), task, reactive.DeepEqual[[]workspace.SchemaInfo])
}

func (k *Kernel) GetSchemas() ([]workspace.SchemaInfo, error) {
	return getTyped[[]workspace.SchemaInfo](k, globalKey("schemas"))
}

func (k *Kernel) PeekSchemas() ([]workspace.SchemaInfo, bool) {
	return peekTyped[[]workspace.SchemaInfo](k, globalKey("schemas"))
}

// ---------------------------------------------------------------------
// global: changeIds
// ---------------------------------------------------------------------

func (k *Kernel) EnsureChangeIds() *reactive.Effect[[]string] {
	task := func(ctx context.Context, tr *reactive.Tracker) ([]string, error) {
		names, _ := k.fs.ReadDir(tr, k.changesDir(), reactivefs.DirOptions{
			DirectoriesOnly: true,
			Exclude:         []string{"archive"},
		})
		return names, nil
	}
	return ensureState(k, k.ctx, globalKey("changeIds"), task, reactive.DeepEqual[[]string])
}

func (k *Kernel) GetChangeIds() ([]string, error) {
	return getTyped[[]string](k, globalKey("changeIds"))
}

func (k *Kernel) PeekChangeIds() ([]string, bool) {
	return peekTyped[[]string](k, globalKey("changeIds"))
}

// ---------------------------------------------------------------------
// global: projectConfig
// ---------------------------------------------------------------------

func (k *Kernel) EnsureProjectConfig() *reactive.Effect[*string] {
	task := func(ctx context.Context, tr *reactive.Tracker) (*string, error) {
		return k.fs.ReadFile(tr, k.configPath()), nil
	}
	equals := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return ensureState(k, k.ctx, globalKey("projectConfig"), task, equals)
}

func (k *Kernel) GetProjectConfig() (*string, error) {
	return getTyped[*string](k, globalKey("projectConfig"))
}

func (k *Kernel) PeekProjectConfig() (*string, bool) {
	return peekTyped[*string](k, globalKey("projectConfig"))
}

// ---------------------------------------------------------------------
// global: statusList
// ---------------------------------------------------------------------

func (k *Kernel) EnsureStatusList() *reactive.Effect[[]workspace.ChangeStatus] {
	task := func(ctx context.Context, tr *reactive.Tracker) ([]workspace.ChangeStatus, error) {
		idsEff := k.EnsureChangeIds()
		reactive.TrackValue(tr, idsEff.Value())
		ids, err := idsEff.WaitFirst(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]workspace.ChangeStatus, 0, len(ids))
		for _, id := range ids {
			statusEff := k.EnsureChangeStatus(id, "")
			reactive.TrackValue(tr, statusEff.Value())
			status, err := statusEff.WaitFirst(ctx)
			if err != nil {
				// A failing change's status does not abort the aggregate;
				// it is simply skipped.
				continue
			}
			out = append(out, status)
		}
		return out, nil
	}
	return ensureState(k, k.ctx, globalKey("statusList"), task, reactive.DeepEqual[[]workspace.ChangeStatus])
}

func (k *Kernel) GetStatusList() ([]workspace.ChangeStatus, error) {
	return getTyped[[]workspace.ChangeStatus](k, globalKey("statusList"))
}

func (k *Kernel) PeekStatusList() ([]workspace.ChangeStatus, bool) {
	return peekTyped[[]workspace.ChangeStatus](k, globalKey("statusList"))
}

// ---------------------------------------------------------------------
// schema: resolution(name)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureSchemaResolution(name string) *reactive.Effect[workspace.SchemaResolution] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.SchemaResolution, error) {
		trackDirTree(tr, k.schemasDir())
		return fetchSchemaWhich(ctx, k.cli, name)
	}
	ctx := k.entityCtx(schemaEntityID(name))
	return ensureState(k, ctx, schemaKey(name, "resolution"), task, reactive.DeepEqual[workspace.SchemaResolution])
}

func (k *Kernel) GetSchemaResolution(name string) (workspace.SchemaResolution, error) {
	return getTyped[workspace.SchemaResolution](k, schemaKey(name, "resolution"))
}

func (k *Kernel) PeekSchemaResolution(name string) (workspace.SchemaResolution, bool) {
	return peekTyped[workspace.SchemaResolution](k, schemaKey(name, "resolution"))
}

// ---------------------------------------------------------------------
// schema: detail(name)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureSchemaDetail(name string) *reactive.Effect[workspace.SchemaDetail] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.SchemaDetail, error) {
		resolutionEff := k.EnsureSchemaResolution(name)
		reactive.TrackValue(tr, resolutionEff.Value())
		resolution, err := resolutionEff.WaitFirst(ctx)
		if err != nil {
			return workspace.SchemaDetail{}, err
		}
		content := k.fs.ReadFile(tr, filepath.Join(resolution.Path, "schema.yaml"))
		if content == nil {
			return workspace.SchemaDetail{}, fmt.Errorf("schema %q: schema.yaml not found at %s", name, resolution.Path)
		}
		return workspace.ParseSchemaDetail(*content)
	}
	ctx := k.entityCtx(schemaEntityID(name))
	equals := reactive.DeepEqual[workspace.SchemaDetail]
	return ensureState(k, ctx, schemaKey(name, "detail"), task, equals)
}

func (k *Kernel) GetSchemaDetail(name string) (workspace.SchemaDetail, error) {
	return getTyped[workspace.SchemaDetail](k, schemaKey(name, "detail"))
}

func (k *Kernel) PeekSchemaDetail(name string) (workspace.SchemaDetail, bool) {
	return peekTyped[workspace.SchemaDetail](k, schemaKey(name, "detail"))
}

// ---------------------------------------------------------------------
// schema: yaml(name)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureSchemaYaml(name string) *reactive.Effect[*string] {
	task := func(ctx context.Context, tr *reactive.Tracker) (*string, error) {
		resolutionEff := k.EnsureSchemaResolution(name)
		reactive.TrackValue(tr, resolutionEff.Value())
		resolution, err := resolutionEff.WaitFirst(ctx)
		if err != nil {
			return nil, err
		}
		return k.fs.ReadFile(tr, filepath.Join(resolution.Path, "schema.yaml")), nil
	}
	ctx := k.entityCtx(schemaEntityID(name))
	equals := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return ensureState(k, ctx, schemaKey(name, "yaml"), task, equals)
}

func (k *Kernel) GetSchemaYaml(name string) (*string, error) {
	return getTyped[*string](k, schemaKey(name, "yaml"))
}

func (k *Kernel) PeekSchemaYaml(name string) (*string, bool) {
	return peekTyped[*string](k, schemaKey(name, "yaml"))
}

// ---------------------------------------------------------------------
// schema: files(name)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureSchemaFiles(name string) *reactive.Effect[[]workspace.ChangeFile] {
	task := func(ctx context.Context, tr *reactive.Tracker) ([]workspace.ChangeFile, error) {
		resolutionEff := k.EnsureSchemaResolution(name)
		reactive.TrackValue(tr, resolutionEff.Value())
		resolution, err := resolutionEff.WaitFirst(ctx)
		if err != nil {
			return nil, err
		}
		return walkTree(k.fs, tr, resolution.Path)
	}
	ctx := k.entityCtx(schemaEntityID(name))
	return ensureState(k, ctx, schemaKey(name, "files"), task, reactive.DeepEqual[[]workspace.ChangeFile])
}

func (k *Kernel) GetSchemaFiles(name string) ([]workspace.ChangeFile, error) {
	return getTyped[[]workspace.ChangeFile](k, schemaKey(name, "files"))
}

func (k *Kernel) PeekSchemaFiles(name string) ([]workspace.ChangeFile, bool) {
	return peekTyped[[]workspace.ChangeFile](k, schemaKey(name, "files"))
}

// ---------------------------------------------------------------------
// schema: templates(name?) / templateContents(name?)
// ---------------------------------------------------------------------
//
// name == "" is the unqualified form; both it and every per-schema form are
// warmed so UIs can show the union, per the kernel's tie-break policy.

func (k *Kernel) EnsureSchemaTemplates(name string) *reactive.Effect[workspace.TemplatesMap] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.TemplatesMap, error) {
		trackDirTree(tr, k.schemasDir())
		return fetchTemplates(ctx, k.cli, name)
	}
	ctx := k.ctx
	if name != "" {
		ctx = k.entityCtx(schemaEntityID(name))
	}
	return ensureState(k, ctx, schemaKey(name, "templates"), task, reactive.DeepEqual[workspace.TemplatesMap])
}

func (k *Kernel) GetSchemaTemplates(name string) (workspace.TemplatesMap, error) {
	return getTyped[workspace.TemplatesMap](k, schemaKey(name, "templates"))
}

func (k *Kernel) PeekSchemaTemplates(name string) (workspace.TemplatesMap, bool) {
	return peekTyped[workspace.TemplatesMap](k, schemaKey(name, "templates"))
}

func (k *Kernel) EnsureSchemaTemplateContents(name string) *reactive.Effect[workspace.TemplateContentsMap] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.TemplateContentsMap, error) {
		templatesEff := k.EnsureSchemaTemplates(name)
		reactive.TrackValue(tr, templatesEff.Value())
		templates, err := templatesEff.WaitFirst(ctx)
		if err != nil {
			return nil, err
		}
		out := make(workspace.TemplateContentsMap, len(templates))
		for artifactID, entry := range templates {
			content := k.fs.ReadFile(tr, entry.Path)
			text := ""
			if content != nil {
				text = *content
			}
			out[artifactID] = workspace.TemplateContent{Content: text, Path: entry.Path, Source: entry.Source}
		}
		return out, nil
	}
	ctx := k.ctx
	if name != "" {
		ctx = k.entityCtx(schemaEntityID(name))
	}
	equals := reactive.DeepEqual[workspace.TemplateContentsMap]
	return ensureState(k, ctx, schemaKey(name, "templateContents"), task, equals)
}

func (k *Kernel) GetSchemaTemplateContents(name string) (workspace.TemplateContentsMap, error) {
	return getTyped[workspace.TemplateContentsMap](k, schemaKey(name, "templateContents"))
}

func (k *Kernel) PeekSchemaTemplateContents(name string) (workspace.TemplateContentsMap, bool) {
	return peekTyped[workspace.TemplateContentsMap](k, schemaKey(name, "templateContents"))
}

// ---------------------------------------------------------------------
// change: status(id, schema?)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureChangeStatus(id, schema string) *reactive.Effect[workspace.ChangeStatus] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.ChangeStatus, error) {
		trackDirTree(tr, k.changeDir(id))
		status, err := fetchStatus(ctx, k.cli, id, schema)
		if err != nil {
			return workspace.ChangeStatus{}, err
		}
		for i := range status.Artifacts {
			status.Artifacts[i].RelativePath = filepath.ToSlash(filepath.Join("openspec", "changes", id, status.Artifacts[i].OutputPath))
		}
		return status, nil
	}
	ctx := k.entityCtx(changeEntityID(id))
	return ensureState(k, ctx, changeKey(id, "status", schema), task, reactive.DeepEqual[workspace.ChangeStatus])
}

func (k *Kernel) GetChangeStatus(id, schema string) (workspace.ChangeStatus, error) {
	return getTyped[workspace.ChangeStatus](k, changeKey(id, "status", schema))
}

func (k *Kernel) PeekChangeStatus(id, schema string) (workspace.ChangeStatus, bool) {
	return peekTyped[workspace.ChangeStatus](k, changeKey(id, "status", schema))
}

// ---------------------------------------------------------------------
// change: instructions(id, artifact, schema?)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureChangeInstructions(id, artifact, schema string) *reactive.Effect[workspace.ArtifactInstructions] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.ArtifactInstructions, error) {
		trackDirTree(tr, k.changeDir(id))
		return fetchInstructions(ctx, k.cli, artifact, id, schema)
	}
	ctx := k.entityCtx(changeEntityID(id))
	key := changeSubKey(id, "instructions", artifact, schema)
	equals := reactive.DeepEqual[workspace.ArtifactInstructions]
	return ensureState(k, ctx, key, task, equals)
}

func (k *Kernel) GetChangeInstructions(id, artifact, schema string) (workspace.ArtifactInstructions, error) {
	return getTyped[workspace.ArtifactInstructions](k, changeSubKey(id, "instructions", artifact, schema))
}

func (k *Kernel) PeekChangeInstructions(id, artifact, schema string) (workspace.ArtifactInstructions, bool) {
	return peekTyped[workspace.ArtifactInstructions](k, changeSubKey(id, "instructions", artifact, schema))
}

// ---------------------------------------------------------------------
// change: applyInstructions(id, schema?)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureChangeApplyInstructions(id, schema string) *reactive.Effect[workspace.ApplyInstructions] {
	task := func(ctx context.Context, tr *reactive.Tracker) (workspace.ApplyInstructions, error) {
		trackDirTree(tr, k.changeDir(id))
		return fetchApplyInstructions(ctx, k.cli, id, schema)
	}
	ctx := k.entityCtx(changeEntityID(id))
	key := changeKey(id, "applyInstructions", schema)
	return ensureState(k, ctx, key, task, reactive.DeepEqual[workspace.ApplyInstructions])
}

func (k *Kernel) GetChangeApplyInstructions(id, schema string) (workspace.ApplyInstructions, error) {
	return getTyped[workspace.ApplyInstructions](k, changeKey(id, "applyInstructions", schema))
}

func (k *Kernel) PeekChangeApplyInstructions(id, schema string) (workspace.ApplyInstructions, bool) {
	return peekTyped[workspace.ApplyInstructions](k, changeKey(id, "applyInstructions", schema))
}

// ---------------------------------------------------------------------
// change: metadata(id)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureChangeMetadata(id string) *reactive.Effect[*string] {
	task := func(ctx context.Context, tr *reactive.Tracker) (*string, error) {
		return k.fs.ReadFile(tr, filepath.Join(k.changeDir(id), ".openspec.yaml")), nil
	}
	ctx := k.entityCtx(changeEntityID(id))
	equals := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return ensureState(k, ctx, changeKey(id, "metadata", ""), task, equals)
}

func (k *Kernel) GetChangeMetadata(id string) (*string, error) {
	return getTyped[*string](k, changeKey(id, "metadata", ""))
}

func (k *Kernel) PeekChangeMetadata(id string) (*string, bool) {
	return peekTyped[*string](k, changeKey(id, "metadata", ""))
}

// ---------------------------------------------------------------------
// change: artifactOutput(id, outputPath)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureArtifactOutput(id, outputPath string) *reactive.Effect[*string] {
	task := func(ctx context.Context, tr *reactive.Tracker) (*string, error) {
		return k.fs.ReadFile(tr, filepath.Join(k.changeDir(id), outputPath)), nil
	}
	ctx := k.entityCtx(changeEntityID(id))
	key := changeSubKey(id, "artifactOutput", outputPath, "")
	equals := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return ensureState(k, ctx, key, task, equals)
}

func (k *Kernel) GetArtifactOutput(id, outputPath string) (*string, error) {
	return getTyped[*string](k, changeSubKey(id, "artifactOutput", outputPath, ""))
}

func (k *Kernel) PeekArtifactOutput(id, outputPath string) (*string, bool) {
	return peekTyped[*string](k, changeSubKey(id, "artifactOutput", outputPath, ""))
}

// ---------------------------------------------------------------------
// change: globArtifactFiles(id, outputPath)
// ---------------------------------------------------------------------

func (k *Kernel) EnsureGlobArtifactFiles(id, outputPath string) *reactive.Effect[[]workspace.GlobFile] {
	task := func(ctx context.Context, tr *reactive.Tracker) ([]workspace.GlobFile, error) {
		root := k.changeDir(id)
		tree, _ := walkTree(k.fs, tr, root)
		var out []workspace.GlobFile
		for _, f := range tree {
			if f.IsDir {
				continue
			}
			matched, err := doublestar.Match(outputPath, f.Path)
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", outputPath, err)
			}
			if !matched {
				continue
			}
			content := k.fs.ReadFile(tr, filepath.Join(root, f.Path))
			text := ""
			if content != nil {
				text = *content
			}
			out = append(out, workspace.GlobFile{Path: f.Path, Content: text})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		return out, nil
	}
	ctx := k.entityCtx(changeEntityID(id))
	key := changeSubKey(id, "globArtifactFiles", outputPath, "")
	return ensureState(k, ctx, key, task, reactive.DeepEqual[[]workspace.GlobFile])
}

func (k *Kernel) GetGlobArtifactFiles(id, outputPath string) ([]workspace.GlobFile, error) {
	return getTyped[[]workspace.GlobFile](k, changeSubKey(id, "globArtifactFiles", outputPath, ""))
}

func (k *Kernel) PeekGlobArtifactFiles(id, outputPath string) ([]workspace.GlobFile, bool) {
	return peekTyped[[]workspace.GlobFile](k, changeSubKey(id, "globArtifactFiles", outputPath, ""))
}
