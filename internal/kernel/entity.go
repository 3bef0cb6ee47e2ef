package kernel

import (
	"context"
	"strings"
)

// entityController is the abort token the Kernel owns per dynamic entity
// (a schema or a change). Every Effect started for that entity is given
// ctx as its parent, so aborting tears down all of them together without
// the Kernel needing to track each Effect individually.
type entityController struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newEntityController(parent context.Context) *entityController {
	ctx, cancel := context.WithCancel(parent)
	return &entityController{ctx: ctx, cancel: cancel}
}

// entityCtx returns the context entity states should be started under,
// creating the controller on first use.
func (k *Kernel) entityCtx(entityID string) context.Context {
	k.mu.Lock()
	defer k.mu.Unlock()
	ec, ok := k.entities[entityID]
	if !ok {
		ec = newEntityController(k.ctx)
		k.entities[entityID] = ec
	}
	return ec.ctx
}

// teardownEntity removes a dynamic entity in two phases: abort the entity's
// token, then delete every NamedState whose key carries the entity's
// prefix. The two steps are ordered so in-flight reruns stop before their
// handles disappear from the registry.
func (k *Kernel) teardownEntity(entityID, statePrefix string) {
	k.mu.Lock()
	ec, ok := k.entities[entityID]
	if ok {
		delete(k.entities, entityID)
	}
	k.mu.Unlock()

	if ok {
		ec.cancel()
	}

	k.mu.Lock()
	var toCancel []stateHandle
	for key, h := range k.states {
		if strings.HasPrefix(key, statePrefix) {
			toCancel = append(toCancel, h)
			delete(k.states, key)
		}
	}
	k.mu.Unlock()

	for _, h := range toCancel {
		h.cancel()
	}
}
