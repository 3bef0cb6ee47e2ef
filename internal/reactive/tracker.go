package reactive

import "sync"

// WatcherKey names the watched directory a Dependency is observed through.
// It is declared here (rather than imported from the watch package) to avoid
// an import cycle, since the watch pool itself needs to accept a
// Dependency's watcher key shape when registering wakes.
type WatcherKey struct {
	Path      string
	Recursive bool
}

// Dependency names one reactive source observed by a task run.
type Dependency struct {
	Watcher WatcherKey
	Op      string
	Path    string
}

// WakeSource subscribes a wake callback to a reactive source that is not a
// watched path (typically another state's Value) and returns an
// unsubscribe func. It lets a derived state rerun when an upstream state
// publishes a new value, without any filesystem event in between.
type WakeSource func(wake func()) (unregister func())

// Tracker accumulates the dependency set of one in-flight Effect run. A
// fresh Tracker is created for every run so that a task which conditionally
// reads a path no longer depends on it once the branch stops executing.
type Tracker struct {
	mu      sync.Mutex
	deps    map[Dependency]struct{}
	sources []WakeSource
}

// NewTracker returns an empty Tracker ready to record dependencies.
func NewTracker() *Tracker {
	return &Tracker{deps: make(map[Dependency]struct{})}
}

// Track records d as having been read during the current run. Safe to call
// concurrently (a task may fan out internal goroutines while still sharing
// one Tracker).
func (t *Tracker) Track(d Dependency) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deps[d] = struct{}{}
}

// TrackSource records a non-path reactive source read during the current
// run.
func (t *Tracker) TrackSource(s WakeSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = append(t.sources, s)
}

// TrackValue records v as a reactive source of the current run: the owning
// effect reruns when v next publishes a distinct value.
func TrackValue[T any](tr *Tracker, v *Value[T]) {
	tr.TrackSource(func(wake func()) func() {
		return v.OnChange(func(T) { wake() })
	})
}

// Snapshot returns the set of dependencies recorded so far.
func (t *Tracker) Snapshot() []Dependency {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Dependency, 0, len(t.deps))
	for d := range t.deps {
		out = append(out, d)
	}
	return out
}

// Sources returns the wake sources recorded so far.
func (t *Tracker) Sources() []WakeSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]WakeSource{}, t.sources...)
}
