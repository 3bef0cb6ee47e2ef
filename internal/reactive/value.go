// Package reactive implements the process-local reactive primitives that sit
// underneath the kernel: a mutable, observable slot (Value) and a
// self-rerunning computation (Effect) that tracks the reactive sources it
// reads via an explicit Tracker handle rather than ambient context-local
// state.
package reactive

import (
	"reflect"
	"sync"
)

// Value holds a single mutable slot of type T plus an ordered set of
// listeners. Notifications for one Set happen synchronously, before Set
// returns, and only when the configured equality predicate reports the new
// value as distinct from the old one.
type Value[T any] struct {
	mu        sync.Mutex
	current   T
	hasValue  bool
	equals    func(a, b T) bool
	listeners []*listener[T]
	nextID    uint64
}

type listener[T any] struct {
	id uint64
	cb func(T)
}

// NewValue constructs a Value with an optional equality predicate. A nil
// equals always treats Set as a change (the common case for types without a
// meaningful identity compare, e.g. pointers and freshly-allocated slices).
func NewValue[T any](initial T, equals func(a, b T) bool) *Value[T] {
	return &Value[T]{current: initial, hasValue: true, equals: equals}
}

// Get returns the current value without side effects.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores newVal if it is distinct from the current value per the
// configured equality predicate, then notifies listeners in registration
// order. Listeners added during this call's notification do not observe it.
func (v *Value[T]) Set(newVal T) {
	v.mu.Lock()
	if v.hasValue && v.equals != nil && v.equals(v.current, newVal) {
		v.mu.Unlock()
		return
	}
	v.current = newVal
	v.hasValue = true
	// Snapshot so a listener registering/unsubscribing mid-notification
	// can't mutate the slice we're iterating.
	snapshot := make([]*listener[T], len(v.listeners))
	copy(snapshot, v.listeners)
	v.mu.Unlock()

	for _, l := range snapshot {
		l.cb(newVal)
	}
}

// OnChange subscribes cb to future Set calls and returns an unsubscribe
// function. The callback is invoked from within Set, on whatever goroutine
// calls Set.
func (v *Value[T]) OnChange(cb func(T)) (unsub func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	l := &listener[T]{id: id, cb: cb}
	v.listeners = append(v.listeners, l)
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		for i, existing := range v.listeners {
			if existing.id == id {
				v.listeners = append(v.listeners[:i], v.listeners[i+1:]...)
				break
			}
		}
	}
}

// DeepEqual is a convenience equality predicate for structured types
// (slices/maps/structs) that should compare by value rather than identity.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
