package reactivefs

import (
	"sync"

	"github.com/jixoai/openspecui-kernel/internal/rcache"
	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/watch"
)

// registerWake acquires a pool watcher per distinct watcher key among deps.
// Every time one of them changes, the corresponding cache rows are
// invalidated (so the next run observes fresh data) and wake is invoked.
// The registration stays live until the returned func releases it, which is
// what lets an invalidation that lands while the effect's task is mid-run
// still be observed: the effect replaces its registration only after the
// run completes, so there is no window with nobody watching. Releasing is
// idempotent.
func registerWake(pool *watch.Pool, cache *rcache.Cache, deps []reactive.Dependency, wake func()) func() {
	seen := make(map[watch.Key]bool)
	var releases []func()

	for _, d := range deps {
		key := watch.Key{Path: d.Watcher.Path, Recursive: d.Watcher.Recursive}
		if seen[key] {
			continue
		}
		seen[key] = true
		path := d.Watcher.Path
		release := pool.AcquireWatcher(key, func() {
			cache.Invalidate(path)
			wake()
		})
		releases = append(releases, release)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, release := range releases {
				release()
			}
		})
	}
}
