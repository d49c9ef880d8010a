package resolver

import (
	"context"
	"sync"
)

type mutationContextKey struct{}

// ChangeKind names the kind of write a mutation performed.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeRemove ChangeKind = "remove"
)

// Change records one write made by a mutation operation.
type Change struct {
	Collection string
	Kind       ChangeKind
	ID         any
}

// MutationContext collects the writes made while executing one mutation
// operation so the HTTP layer can report them after the operation finishes.
type MutationContext struct {
	changes []Change
	mu      sync.Mutex
}

func NewMutationContext() *MutationContext {
	return &MutationContext{}
}

// Record appends a change.
func (mc *MutationContext) Record(change Change) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	mc.changes = append(mc.changes, change)
	mc.mu.Unlock()
}

// Changes returns the recorded changes in order.
func (mc *MutationContext) Changes() []Change {
	if mc == nil {
		return nil
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]Change, len(mc.changes))
	copy(out, mc.changes)
	return out
}

func WithMutationContext(ctx context.Context, mc *MutationContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, mutationContextKey{}, mc)
}

func MutationContextFromContext(ctx context.Context) *MutationContext {
	if ctx == nil {
		return nil
	}
	mc, _ := ctx.Value(mutationContextKey{}).(*MutationContext)
	return mc
}
