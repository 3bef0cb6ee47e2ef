// Package rcache implements the cache layer: a process-wide mapping from
// (op, path, optionsHash) to the last computed value, invalidated by
// watcher events so the reactive-fs helpers can serve repeat reads without
// touching the disk.
package rcache

import (
	"path/filepath"
	"strings"
	"sync"
)

// Key identifies one cached computation.
type Key struct {
	Op       string
	Path     string
	OptsHash string
}

type row struct {
	value any
}

// Cache is the process-wide cache singleton. The zero value is not usable;
// use New.
type Cache struct {
	mu   sync.RWMutex
	rows map[Key]row
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{rows: make(map[Key]row)}
}

// Get returns the cached value and true on hit, or the zero value and
// false on miss. T must match the type originally stored by Put for the
// same key, otherwise Get treats it as a miss (defensive against op reuse
// with mismatched types, which should never happen in practice).
func Get[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.RLock()
	r, ok := c.rows[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	v, ok := r.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Put stores value under key, creating the row if absent.
func Put[T any](c *Cache, key Key, value T) {
	c.mu.Lock()
	c.rows[key] = row{value: value}
	c.mu.Unlock()
}

// Invalidate drops every cached row whose Path equals changedPath, is a
// descendant of it (directory-recursive invalidation), or is an ancestor
// whose listing the change may have altered. Returns the dropped keys,
// purely for logging/tests.
func (c *Cache) Invalidate(changedPath string) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped []Key
	for k := range c.rows {
		if k.Path == changedPath || isDescendant(changedPath, k.Path) || isDescendant(k.Path, changedPath) {
			dropped = append(dropped, k)
			delete(c.rows, k)
		}
	}
	return dropped
}

func isDescendant(root, candidate string) bool {
	if root == candidate {
		return false
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Clear drops every row. A test affordance only; production code paths
// never call it.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.rows = make(map[Key]row)
	c.mu.Unlock()
}

// Len reports the number of cached rows (test affordance).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}
