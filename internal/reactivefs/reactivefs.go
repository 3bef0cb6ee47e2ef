// Package reactivefs implements the reactive filesystem wrappers: read-file,
// read-dir, stat and exists operations that register the touched path as a
// dependency of the current run's Tracker, backed by the cache layer
// (internal/rcache) and the watcher pool (internal/watch).
package reactivefs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jixoai/openspecui-kernel/internal/rcache"
	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/watch"
)

// Source bundles the cache and watcher pool a reactive-fs call needs and
// doubles as the reactive.Waker that Effects register against.
type Source struct {
	Cache *rcache.Cache
	Pool  *watch.Pool
}

// New constructs a Source with a fresh cache over the given pool.
func New(pool *watch.Pool) *Source {
	return &Source{Cache: rcache.New(), Pool: pool}
}

// Register implements reactive.Waker. It acquires a pool watcher for every
// dependency's containing directory and fires wake each time any of them
// changes, invalidating the corresponding cache rows first so the rerun
// observes fresh data. The registration stays live until the returned
// unregister releases it.
func (s *Source) Register(deps []reactive.Dependency, wake func()) func() {
	return registerWake(s.Pool, s.Cache, deps, wake)
}

// DirOptions controls ReadDir filtering, applied after the directory is
// read: filters do not change the dependency edge.
type DirOptions struct {
	DirectoriesOnly bool
	IncludeHidden   bool
	Exclude         []string
}

// StatResult reports whether a stat'd path is a directory.
type StatResult struct {
	IsDirectory bool
}

func canon(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func trackRead(tr *reactive.Tracker, op, path string) {
	dir := filepath.Dir(path)
	tr.Track(reactive.Dependency{
		Watcher: reactive.WatcherKey{Path: dir},
		Op:      op,
		Path:    path,
	})
}

// ReadFile returns the file's content, or nil if it does not exist. Read
// errors other than "not exist" also degrade to nil; the dependency edge is
// installed either way so creation of the file triggers a rerun.
func (s *Source) ReadFile(tr *reactive.Tracker, path string) *string {
	abs := canon(path)
	trackRead(tr, "read-file", abs)

	key := rcache.Key{Op: "read-file", Path: abs}
	if v, ok := rcache.Get[*string](s.Cache, key); ok {
		return v
	}

	data, err := os.ReadFile(abs)
	var result *string
	if err == nil {
		content := string(data)
		result = &content
	}
	rcache.Put(s.Cache, key, result)
	return result
}

// Exists reports whether path currently exists.
func (s *Source) Exists(tr *reactive.Tracker, path string) bool {
	abs := canon(path)
	trackRead(tr, "exists", abs)

	key := rcache.Key{Op: "exists", Path: abs}
	if v, ok := rcache.Get[bool](s.Cache, key); ok {
		return v
	}
	_, err := os.Stat(abs)
	exists := err == nil
	rcache.Put(s.Cache, key, exists)
	return exists
}

// Stat returns directory-ness for path, or nil if it does not exist.
func (s *Source) Stat(tr *reactive.Tracker, path string) *StatResult {
	abs := canon(path)
	trackRead(tr, "stat", abs)

	key := rcache.Key{Op: "stat", Path: abs}
	if v, ok := rcache.Get[*StatResult](s.Cache, key); ok {
		return v
	}
	info, err := os.Stat(abs)
	var result *StatResult
	if err == nil {
		result = &StatResult{IsDirectory: info.IsDir()}
	}
	rcache.Put(s.Cache, key, result)
	return result
}

// ReadDir lists the entries of path (sorted by name for determinism),
// filtered by opts after the dependency edge on the directory itself is
// installed. Unlike ReadFile/Stat/Exists, a read failure is reported rather
// than swallowed into an empty result: most callers discard the error
// themselves, but the schema-files walk needs to surface it.
func (s *Source) ReadDir(tr *reactive.Tracker, path string, opts DirOptions) ([]string, error) {
	abs := canon(path)
	tr.Track(reactive.Dependency{
		Watcher: reactive.WatcherKey{Path: abs},
		Op:      "read-dir",
		Path:    abs,
	})

	key := rcache.Key{Op: "read-dir", Path: abs}
	var names []string
	if v, ok := rcache.Get[[]string](s.Cache, key); ok {
		names = v
	} else {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		rcache.Put(s.Cache, key, names)
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if opts.DirectoriesOnly {
			info, err := os.Stat(filepath.Join(abs, name))
			if err != nil || !info.IsDir() {
				continue
			}
		}
		if matchesExclude(name, opts.Exclude) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func matchesExclude(name string, exclude []string) bool {
	for _, ex := range exclude {
		if ex == name {
			return true
		}
	}
	return false
}
