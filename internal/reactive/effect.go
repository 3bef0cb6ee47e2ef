package reactive

import (
	"context"
	"errors"
	"sync"
)

// State is the lifecycle stage of one Effect: it starts Pending, becomes
// Ready or Error after its first run, moves to Rerun when a dependency
// fires, and reaches a terminal Disposed state only when its context is
// cancelled (by Cancel or by cancellation of the parent context).
type State int

const (
	StatePending State = iota
	StateReady
	StateError
	StateRerun
	StateDisposed
)

// ErrDisposed is returned by WaitFirst when the Effect was cancelled before
// its task ever completed a run.
var ErrDisposed = errors.New("reactive: effect disposed before producing a value")

// Waker lets an Effect register interest in a dependency set and be woken
// when any of them changes. The kernel's watch+cache layers implement this
// by combining watcher-pool subscriptions with cache invalidation; see
// internal/reactivefs.
type Waker interface {
	// Register arranges for wake to be invoked every time any dependency in
	// deps changes, until the returned unregister func releases the
	// registration. Unregister must be idempotent.
	Register(deps []Dependency, wake func()) (unregister func())
}

// Task is the user-supplied computation an Effect reruns on every
// dependency change. It must record every reactive source it reads via tr.
type Task[T any] func(ctx context.Context, tr *Tracker) (T, error)

// Effect is a running ReactiveContext: it owns a goroutine that repeatedly
// runs a Task, publishes successful results into an owned Value[T], and
// reruns whenever a recorded dependency fires. Two invalidations that land
// while a run is in flight coalesce into exactly one subsequent rerun.
type Effect[T any] struct {
	task  Task[T]
	waker Waker
	value *Value[T]

	mu          sync.Mutex
	state       State
	succeeded   bool
	lastErr     error
	lastDeps    []Dependency // deps from the last *successful* run
	lastSources []WakeSource
	unregister  func()

	onError []func(error)

	cancel context.CancelFunc
	done   chan struct{}

	firstOnce sync.Once
	firstDone chan struct{}
}

// NewEffect creates and starts an Effect. The background goroutine runs
// until ctx is cancelled or Cancel is called.
func NewEffect[T any](ctx context.Context, task Task[T], waker Waker, equals func(a, b T) bool) *Effect[T] {
	var zero T
	runCtx, cancel := context.WithCancel(ctx)
	e := &Effect[T]{
		task:      task,
		waker:     waker,
		value:     NewValue(zero, equals),
		state:     StatePending,
		cancel:    cancel,
		done:      make(chan struct{}),
		firstDone: make(chan struct{}),
	}
	go e.loop(runCtx)
	return e
}

// Value exposes the Effect's owned reactive value.
func (e *Effect[T]) Value() *Value[T] { return e.value }

// State returns the current lifecycle state.
func (e *Effect[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasValue reports whether at least one run has completed successfully, i.e.
// whether Value holds a real result rather than the zero placeholder.
func (e *Effect[T]) HasValue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.succeeded
}

// LastError returns the error from the most recent failed run, or nil if
// the latest completed run succeeded.
func (e *Effect[T]) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// OnError registers a callback invoked every time a run fails. Unlike
// Value.OnChange this has no unsubscribe handle; callers that need removal
// should gate cb on an external flag (the kernel's subscription bridge does
// this per-subscriber).
func (e *Effect[T]) OnError(cb func(error)) {
	e.mu.Lock()
	e.onError = append(e.onError, cb)
	e.mu.Unlock()
}

// WaitFirst blocks until the Effect's task has completed at least once
// (successfully or with an error) or ctx is cancelled. This is what
// ensureX-style APIs use to resolve "once the first value has been
// produced". If the Effect has ever succeeded, the last good value is
// returned; otherwise the most recent error is, so a key whose first run
// failed unblocks callers with that error, and a later recovery makes
// subsequent waits succeed without resubscribing.
func (e *Effect[T]) WaitFirst(ctx context.Context) (T, error) {
	select {
	case <-e.firstDone:
		return e.firstResult()
	case <-e.done:
		select {
		case <-e.firstDone:
			return e.firstResult()
		default:
		}
		var zero T
		return zero, ErrDisposed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (e *Effect[T]) firstResult() (T, error) {
	e.mu.Lock()
	succeeded, lastErr := e.succeeded, e.lastErr
	e.mu.Unlock()
	if !succeeded {
		var zero T
		return zero, lastErr
	}
	return e.value.Get(), nil
}

// Cancel disposes the Effect: it stops future reruns, drops its wake
// registration, and moves to StateDisposed. The context handed to an
// in-flight run is cancelled as well, so a task that honours its context
// stops early; whatever that run returns is discarded, and Cancel returns
// once it has returned.
func (e *Effect[T]) Cancel() {
	e.cancel()
	<-e.done
}

// loop is the single owning goroutine for this Effect. Each iteration: run
// the task with a fresh Tracker, publish or report the outcome, register
// wakes against the recorded dependencies, then block until one fires.
// Registrations are replaced only after the next run completes, so an
// invalidation landing mid-run still hits a live registration and produces
// exactly one additional run after completion instead of being lost; the
// wake channel's unit capacity collapses any number of such firings into
// that single rerun.
func (e *Effect[T]) loop(ctx context.Context) {
	defer close(e.done)

	woke := make(chan struct{}, 1)
	wake := func() {
		e.mu.Lock()
		if e.state != StateDisposed {
			e.state = StateRerun
		}
		e.mu.Unlock()
		select {
		case woke <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			e.dispose()
			return
		default:
		}

		tr := NewTracker()
		result, err := e.task(ctx, tr)
		deps := tr.Snapshot()
		sources := tr.Sources()

		select {
		case <-ctx.Done():
			e.dispose()
			return
		default:
		}

		e.mu.Lock()
		if err != nil {
			e.state = StateError
			e.lastErr = err
			// Retry against the last *successful* dependency set (or, if
			// there has never been one, this run's own set): a failing run
			// must not stop re-enlisting the sources it depended on.
			if e.lastDeps == nil {
				e.lastDeps = deps
				e.lastSources = sources
			}
			callbacks := append([]func(error){}, e.onError...)
			e.mu.Unlock()
			e.firstOnce.Do(func() { close(e.firstDone) })
			for _, cb := range callbacks {
				cb(err)
			}
		} else {
			e.lastDeps = deps
			e.lastSources = sources
			e.state = StateReady
			e.succeeded = true
			e.lastErr = nil
			e.mu.Unlock()
			e.value.Set(result)
			e.firstOnce.Do(func() { close(e.firstDone) })
		}

		e.mu.Lock()
		depsToWatch := e.lastDeps
		sourcesToWatch := e.lastSources
		prev := e.unregister
		e.mu.Unlock()

		unregs := make([]func(), 0, len(sourcesToWatch)+1)
		unregs = append(unregs, e.waker.Register(depsToWatch, wake))
		for _, src := range sourcesToWatch {
			unregs = append(unregs, src(wake))
		}
		unregister := func() {
			for _, u := range unregs {
				u()
			}
		}

		e.mu.Lock()
		e.unregister = unregister
		e.mu.Unlock()

		// Drop the previous iteration's registration only after the new one
		// is installed, so shared watchers stay referenced across reruns.
		if prev != nil {
			prev()
		}

		select {
		case <-ctx.Done():
			e.dispose()
			return
		case <-woke:
		}
	}
}

func (e *Effect[T]) dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unregister != nil {
		e.unregister()
		e.unregister = nil
	}
	e.state = StateDisposed
}
