package kernel

import (
	"context"
	"sync"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

// Warmup starts the one-time phased initialization if it has not already
// started, then blocks until it completes or ctx is cancelled. Concurrent
// callers all block on the same run.
func (k *Kernel) Warmup(ctx context.Context) error {
	k.warmMu.Lock()
	if !k.warmStarted {
		k.warmStarted = true
		go k.runWarmup()
	}
	k.warmMu.Unlock()
	return k.WaitForWarmup(ctx)
}

// WaitForWarmup blocks until warm-up has completed, without starting it.
func (k *Kernel) WaitForWarmup(ctx context.Context) error {
	select {
	case <-k.warmDone:
		return k.warmErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kernel) runWarmup() {
	defer close(k.warmDone)

	// Phase A: schemas, changeIds and projectConfig run in parallel; none
	// depends on the others' first value.
	schemasEff := k.EnsureSchemas()
	changeIdsEff := k.EnsureChangeIds()
	configEff := k.EnsureProjectConfig()

	schemas, schemasErr := schemasEff.WaitFirst(k.ctx)
	changeIds, changeIdsErr := changeIdsEff.WaitFirst(k.ctx)
	_, _ = configEff.WaitFirst(k.ctx)

	if schemasErr != nil {
		// No CLI at all: subsequent ensureX calls still work (they retry
		// the same failing command), but warm-up itself reports the cause
		// so a caller can treat the workspace as offline.
		k.warmErr = schemasErr
	}

	// Phase B: per-schema effects, plus the unqualified ("") templates form.
	for _, si := range schemas {
		k.warmSchema(si.Name)
	}
	k.warmSchema("")

	// Phase C: per-change effects, plus per-artifact effects once status
	// resolves.
	for _, id := range changeIds {
		k.warmChange(id)
	}

	// Phase D: the aggregate, which lazily re-ensures every change's status.
	k.EnsureStatusList().WaitFirst(k.ctx)

	// Dynamic: react to schemas/changeIds gaining or losing entries.
	k.watchDynamicSchemas(schemasEff, schemas)
	k.watchDynamicChanges(changeIdsEff, changeIds)

	if changeIdsErr != nil && k.warmErr == nil {
		k.warmErr = changeIdsErr
	}
}

func (k *Kernel) warmSchema(name string) {
	k.EnsureSchemaTemplates(name)
	k.EnsureSchemaTemplateContents(name)
	if name == "" {
		return
	}
	k.EnsureSchemaResolution(name)
	k.EnsureSchemaDetail(name)
	k.EnsureSchemaFiles(name)
	k.EnsureSchemaYaml(name)
}

func (k *Kernel) warmChange(id string) {
	k.EnsureChangeMetadata(id)
	k.EnsureChangeApplyInstructions(id, "")
	statusEff := k.EnsureChangeStatus(id, "")
	go func() {
		status, err := statusEff.WaitFirst(k.ctx)
		if err != nil {
			return
		}
		for _, a := range status.Artifacts {
			k.EnsureChangeInstructions(id, a.ID, "")
			k.EnsureArtifactOutput(id, a.OutputPath)
			if workspace.IsGlobPattern(a.OutputPath) {
				k.EnsureGlobArtifactFiles(id, a.OutputPath)
			}
		}
	}()
}

// watchDynamicSchemas adds/removes per-schema state when the schemas list
// changes: an added name gets warmSchema run for it; a removed name has its
// EntityController aborted and every schema:<name>: state deleted.
func (k *Kernel) watchDynamicSchemas(eff *reactive.Effect[[]workspace.SchemaInfo], initial []workspace.SchemaInfo) {
	var mu sync.Mutex
	known := make(map[string]bool, len(initial))
	for _, si := range initial {
		known[si.Name] = true
	}
	eff.Value().OnChange(func(list []workspace.SchemaInfo) {
		mu.Lock()
		defer mu.Unlock()
		seen := make(map[string]bool, len(list))
		for _, si := range list {
			seen[si.Name] = true
			if !known[si.Name] {
				known[si.Name] = true
				k.warmSchema(si.Name)
			}
		}
		for name := range known {
			if !seen[name] {
				delete(known, name)
				k.teardownEntity(schemaEntityID(name), schemaEntityPrefix(name))
			}
		}
	})
}

// watchDynamicChanges mirrors watchDynamicSchemas for changeIds.
func (k *Kernel) watchDynamicChanges(eff *reactive.Effect[[]string], initial []string) {
	var mu sync.Mutex
	known := make(map[string]bool, len(initial))
	for _, id := range initial {
		known[id] = true
	}
	eff.Value().OnChange(func(list []string) {
		mu.Lock()
		defer mu.Unlock()
		seen := make(map[string]bool, len(list))
		for _, id := range list {
			seen[id] = true
			if !known[id] {
				known[id] = true
				k.warmChange(id)
			}
		}
		for id := range known {
			if !seen[id] {
				delete(known, id)
				k.teardownEntity(changeEntityID(id), changeEntityPrefix(id))
			}
		}
	})
}
