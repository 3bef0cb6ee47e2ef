package kernel

import (
	"context"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
)

// stateHandle type-erases a reactive.Effect[T] so the Kernel can keep every
// NamedState in one map regardless of its value type. Go has no generic
// methods, so the type parameter is pinned at construction via typedHandle
// and every operation that needs T goes through a free function instead
// (ensureState, getTyped, peekTyped below).
type stateHandle interface {
	cancel()
}

type typedHandle[T any] struct {
	eff *reactive.Effect[T]
}

func (h *typedHandle[T]) cancel() {
	h.eff.Cancel()
}

// ensureState idempotently creates the NamedState at key if absent, using
// task/equals for a fresh Effect, and returns the (possibly pre-existing)
// Effect. Holding k.mu across reactive.NewEffect is safe because starting an
// Effect only spawns its goroutine; the goroutine's first task run happens
// asynchronously and does not need k.mu to make progress.
func ensureState[T any](k *Kernel, ctx context.Context, key string, task reactive.Task[T], equals func(a, b T) bool) *reactive.Effect[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	if existing, ok := k.states[key]; ok {
		return existing.(*typedHandle[T]).eff
	}
	eff := reactive.NewEffect(ctx, task, k.fs, equals)
	k.states[key] = &typedHandle[T]{eff: eff}
	return eff
}

// getTyped implements getX: a pure read that errors if key was never
// ensured.
func getTyped[T any](k *Kernel, key string) (T, error) {
	var zero T
	k.mu.Lock()
	h, ok := k.states[key]
	k.mu.Unlock()
	if !ok {
		return zero, &NeverEnsuredError{Key: key}
	}
	return h.(*typedHandle[T]).eff.Value().Get(), nil
}

// peekTyped implements peekX: returns the zero value and false if key was
// never ensured, instead of erroring.
func peekTyped[T any](k *Kernel, key string) (T, bool) {
	var zero T
	k.mu.Lock()
	h, ok := k.states[key]
	k.mu.Unlock()
	if !ok {
		return zero, false
	}
	return h.(*typedHandle[T]).eff.Value().Get(), true
}

// NeverEnsuredError is returned by getX calls on a key that no ensureX has
// ever created.
type NeverEnsuredError struct {
	Key string
}

func (e *NeverEnsuredError) Error() string {
	return "kernel: getX called on never-ensured key " + e.Key
}
