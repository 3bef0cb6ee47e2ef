package kernel

import (
	"path/filepath"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/workspace"
)

// walkTree recursively lists absRoot via the reactive-fs layer, including
// hidden entries (schema/change directory trees surface dotfiles like
// .openspec.yaml even though reactiveReadDir's default listing excludes
// them), tracking one dependency per directory level visited so the walk's
// result stays reactive to additions/removals anywhere in the subtree. A
// ReadDir failure anywhere in the subtree aborts the walk and is returned to
// the caller, which decides whether to surface or swallow it.
func walkTree(fs *reactivefs.Source, tr *reactive.Tracker, absRoot string) ([]workspace.ChangeFile, error) {
	var out []workspace.ChangeFile
	var recurse func(relDir string) error
	recurse = func(relDir string) error {
		dirAbs := absRoot
		if relDir != "" {
			dirAbs = filepath.Join(absRoot, relDir)
		}
		names, err := fs.ReadDir(tr, dirAbs, reactivefs.DirOptions{IncludeHidden: true})
		if err != nil {
			return err
		}
		for _, name := range names {
			relPath := name
			if relDir != "" {
				relPath = filepath.Join(relDir, name)
			}
			full := filepath.Join(absRoot, relPath)
			stat := fs.Stat(tr, full)
			isDir := stat != nil && stat.IsDirectory
			out = append(out, workspace.ChangeFile{Path: filepath.ToSlash(relPath), IsDir: isDir})
			if isDir {
				if err := recurse(relPath); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := recurse(""); err != nil {
		return nil, err
	}
	return out, nil
}
