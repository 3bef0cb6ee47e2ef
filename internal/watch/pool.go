// Package watch implements the watcher pool: one native fsnotify watcher
// shared by the whole process, with per-(path,recursive) listener sets that
// are reference-counted and whose change notifications are debounced into a
// single signal per burst of OS events.
package watch

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Key identifies one logical watch subscription: a directory (or file) path
// plus whether descendants should be watched recursively.
type Key struct {
	Path      string
	Recursive bool
}

// Watcher abstracts the OS-level notifier so tests can substitute an
// in-memory fake for the fsnotify-backed implementation.
type Watcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan Event
	Errors() <-chan error
}

// Event is a normalized filesystem notification.
type Event struct {
	Path   string
	Create bool
	Remove bool
	Rename bool
	Write  bool
}

// DebounceWindow is the quiescence period before a coalesced burst of OS
// events produces a single "changed" callback invocation. It is a quality
// knob only; tests may shrink it.
var DebounceWindow = 50 * time.Millisecond

type keyEntry struct {
	key       Key
	refcount  int
	listeners map[uint64]func()
	nextID    uint64
	timer     *time.Timer
}

// Pool is the process-wide watcher pool. Zero value is not usable; use New.
type Pool struct {
	factory func() (Watcher, error)

	mu      sync.Mutex
	os      Watcher
	dirRefs map[string]int // real OS watch refcount, shared across keys
	keys    map[Key]*keyEntry
	closed  bool
}

// New constructs a Pool backed by factory (normally NewOSWatcher).
func New(factory func() (Watcher, error)) (*Pool, error) {
	w, err := factory()
	if err != nil {
		return nil, err
	}
	p := &Pool{
		factory: factory,
		os:      w,
		dirRefs: make(map[string]int),
		keys:    make(map[Key]*keyEntry),
	}
	go p.dispatch()
	return p, nil
}

// Release is the handle returned by Acquire.
type Release func()

// AcquireWatcher registers onChange against key, creating the underlying
// entry (and OS watches) on first use. If path does not currently exist,
// the listener is still registered and fires once the path appears, so
// callers must not pre-check existence before acquiring a watch.
func (p *Pool) AcquireWatcher(key Key, onChange func()) Release {
	p.mu.Lock()
	entry, ok := p.keys[key]
	if !ok {
		entry = &keyEntry{key: key, listeners: make(map[uint64]func())}
		p.keys[key] = entry
		p.addOSWatches(entry)
	}
	entry.refcount++
	id := entry.nextID
	entry.nextID++
	entry.listeners[id] = onChange
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		e, ok := p.keys[key]
		if !ok {
			return
		}
		delete(e.listeners, id)
		e.refcount--
		if e.refcount <= 0 {
			p.removeOSWatches(e)
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(p.keys, key)
		}
	}
}

// Refcount returns the current listener refcount for key (test affordance).
func (p *Pool) Refcount(key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.keys[key]; ok {
		return e.refcount
	}
	return 0
}

// Close tears down the pool and its OS watcher.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.os.Close()
}

// addOSWatches installs real watches for entry's subtree. Missing paths are
// tolerated: fsnotify.Add on a nonexistent path errors, which we treat as
// "no reactivity yet" rather than a failure.
func (p *Pool) addOSWatches(e *keyEntry) {
	dirs := []string{e.key.Path}
	if e.key.Recursive {
		_ = filepath.WalkDir(e.key.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // best-effort subtree discovery
			}
			if d.IsDir() && path != e.key.Path {
				dirs = append(dirs, path)
			}
			return nil
		})
	}
	for _, dir := range dirs {
		p.addOSWatch(dir)
	}
}

func (p *Pool) addOSWatch(dir string) {
	if p.dirRefs[dir] > 0 {
		p.dirRefs[dir]++
		return
	}
	if err := p.os.Add(dir); err != nil {
		// ENOSPC and friends: surface once via log and leave the key
		// inert. First reads stay correct; only reactivity degrades.
		log.Printf("watch: failed to watch %s: %v", dir, err)
		return
	}
	p.dirRefs[dir] = 1
}

func (p *Pool) removeOSWatches(e *keyEntry) {
	dirs := []string{e.key.Path}
	if e.key.Recursive {
		_ = filepath.WalkDir(e.key.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr
			}
			if d.IsDir() && path != e.key.Path {
				dirs = append(dirs, path)
			}
			return nil
		})
	}
	for _, dir := range dirs {
		p.removeOSWatch(dir)
	}
}

func (p *Pool) removeOSWatch(dir string) {
	n, ok := p.dirRefs[dir]
	if !ok {
		return
	}
	n--
	if n <= 0 {
		delete(p.dirRefs, dir)
		_ = p.os.Remove(dir)
		return
	}
	p.dirRefs[dir] = n
}

// dispatch translates raw OS events into debounced per-key notifications.
func (p *Pool) dispatch() {
	for {
		select {
		case ev, ok := <-p.os.Events():
			if !ok {
				return
			}
			p.handleEvent(ev)
		case err, ok := <-p.os.Errors():
			if !ok {
				return
			}
			log.Printf("watch: watcher error: %v", err)
		}
	}
}

func (p *Pool) handleEvent(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Create {
		if info, err := os.Stat(ev.Path); err == nil && info.IsDir() {
			for _, e := range p.keys {
				// Recursive keys gain watches on new subdirectories; a key
				// acquired before its path existed gains its real OS watch
				// the moment a parent watcher observes the creation.
				if (e.key.Recursive && withinTree(e.key.Path, ev.Path)) || e.key.Path == ev.Path {
					p.addOSWatch(ev.Path)
				}
			}
		}
	}

	for _, e := range p.keys {
		if !matches(e.key, ev.Path) {
			continue
		}
		p.scheduleNotify(e)
	}
}

func matches(k Key, eventPath string) bool {
	if k.Path == eventPath {
		return true
	}
	if k.Recursive {
		return withinTree(k.Path, eventPath)
	}
	return filepath.Dir(eventPath) == k.Path
}

func withinTree(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// scheduleNotify debounces bursts of OS events for one key into a single
// notification after DebounceWindow of quiescence. Must be called with
// p.mu held.
func (p *Pool) scheduleNotify(e *keyEntry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(DebounceWindow, func() {
		p.mu.Lock()
		listeners := make([]func(), 0, len(e.listeners))
		for _, cb := range e.listeners {
			listeners = append(listeners, cb)
		}
		p.mu.Unlock()
		for _, cb := range listeners {
			cb()
		}
	})
}
