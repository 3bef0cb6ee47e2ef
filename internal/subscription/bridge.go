// Package subscription implements the subscription bridge: it wraps a
// reactive.Effect[T] as an at-least-latest push stream with cancellation,
// the shape the kernel's WebSocket surface builds on (the MCP surface reads
// values through Effect.WaitFirst instead).
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
)

// Handlers is the pair of callbacks a subscriber supplies: onData for every
// produced value, onError for every task failure. Either may be nil.
type Handlers[T any] struct {
	OnData  func(T)
	OnError func(error)
}

// Bridge wraps one reactive.Effect[T]. Multiple independent subscriptions
// may be taken against the same Bridge; each gets its own coalescing
// delivery loop and its own unsubscribe handle.
type Bridge[T any] struct {
	eff        *reactive.Effect[T]
	ownsEffect bool
}

// New wraps eff. ownsEffect controls what Unsubscribe does: false (the
// kernel's case: NamedState effects are owned by the Kernel, not by any
// subscriber) leaves the effect running for other subscribers and warm-up
// dependents; true (a standalone ReactiveContext created just for this
// subscription) cancels the effect itself, releasing its dependency edges
// and cache/watcher refcounts. Subscriptions are not counted: with true,
// the first unsubscribe cancels the effect for every subscription taken
// against this Bridge.
func New[T any](eff *reactive.Effect[T], ownsEffect bool) *Bridge[T] {
	return &Bridge[T]{eff: eff, ownsEffect: ownsEffect}
}

// Subscribe registers h against the wrapped Effect and immediately delivers
// the current value (if any has been produced yet), then every subsequent
// one. Delivery is coalescing: if onData is still running when a newer
// value arrives, the newer value replaces the pending one rather than
// queuing, but the most recent value is always eventually delivered.
// Returns an idempotent unsubscribe function.
func (b *Bridge[T]) Subscribe(h Handlers[T]) (unsubscribe func()) {
	var stopped atomic.Bool

	st := &coalescer[T]{}
	deliver := func() {
		if !st.startDelivering() {
			// Another goroutine is already draining the coalescer; it will
			// observe this offer before it next finds the slot empty.
			return
		}
		for {
			v, ok := st.take()
			if !ok {
				return
			}
			if !stopped.Load() && h.OnData != nil {
				h.OnData(v)
			}
		}
	}

	unsubValue := b.eff.Value().OnChange(func(v T) {
		st.offer(v)
		go deliver()
	})

	if h.OnError != nil {
		b.eff.OnError(func(err error) {
			if stopped.Load() {
				return
			}
			h.OnError(err)
		})
	}

	// Seed the stream with the current state: the latest value if one has
	// ever been produced, the latest error if the effect has only failed so
	// far, nothing while the first run is still pending.
	if b.eff.HasValue() {
		st.offer(b.eff.Value().Get())
		go deliver()
	} else if err := b.eff.LastError(); err != nil && h.OnError != nil {
		go h.OnError(err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			unsubValue()
			if b.ownsEffect {
				b.eff.Cancel()
			}
		})
	}
}

// coalescer holds at most one pending value (offers after the first
// replace the slot rather than queuing) and serializes delivery so at most
// one goroutine is ever draining it: a slow onData callback never blocks
// the producer (the Effect's own goroutine, via Value.Set) from returning,
// and two values arriving back-to-back never reach onData concurrently or
// out of order.
type coalescer[T any] struct {
	mu         sync.Mutex
	pending    T
	has        bool
	delivering bool
}

func (c *coalescer[T]) offer(v T) {
	c.mu.Lock()
	c.pending = v
	c.has = true
	c.mu.Unlock()
}

// startDelivering claims exclusive delivery rights; false means another
// goroutine already holds them and will observe this offer itself.
func (c *coalescer[T]) startDelivering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delivering {
		return false
	}
	c.delivering = true
	return true
}

// take atomically drains the pending value, or releases delivery rights if
// none remains, so a concurrent offer+deliver race never strands a value
// with nobody watching it.
func (c *coalescer[T]) take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		c.delivering = false
		var zero T
		return zero, false
	}
	v := c.pending
	c.has = false
	return v, true
}
