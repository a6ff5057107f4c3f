// Package registry provides the in-memory query layer over the credential
// store. It never touches the network or the filesystem - it is a
// read-through index that gets rebuilt whenever the store reloads, so a
// reload atomically replaces the whole view instead of patching it.
package registry

import (
	"errors"
	"fmt"

	"github.com/celikgo/ctxguard/internal/store"
)

// ErrNotFound is returned when a referenced context name does not exist.
var ErrNotFound = errors.New("context not found")

// Registry indexes the store's contexts for lookup and tracks the single
// process-wide current-context pointer.
type Registry struct {
	st *store.Store
}

// New builds a registry over a loaded store. Rebuilding after a store
// reload is just calling New again with the fresh store - the old registry
// is dropped wholesale, never mutated in place.
func New(st *store.Store) *Registry {
	return &Registry{st: st}
}

// List returns all contexts in insertion order.
func (r *Registry) List() []store.Context {
	return r.st.Contexts()
}

// Get looks up a single context by name.
func (r *Registry) Get(name string) (store.Context, bool) {
	return r.st.Context(name)
}

// Current returns the active context, if one is set.
func (r *Registry) Current() (store.Context, bool) {
	name := r.st.CurrentContext()
	if name == "" {
		return store.Context{}, false
	}
	return r.st.Context(name)
}

// SetCurrent moves the current-context pointer. Switching never deletes or
// mutates other contexts - it only moves the pointer.
func (r *Registry) SetCurrent(name string) error {
	if !r.st.SetCurrentContext(name) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// Resolve returns the context together with its cluster endpoint and
// credential, or an error naming the first dangling reference. This is the
// lookup the dispatcher uses before handing a context to the executor.
func (r *Registry) Resolve(name string) (store.Context, store.ClusterEndpoint, store.Credential, error) {
	ctx, ok := r.st.Context(name)
	if !ok {
		return store.Context{}, store.ClusterEndpoint{}, store.Credential{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	cluster, ok := r.st.Cluster(ctx.Cluster)
	if !ok {
		return store.Context{}, store.ClusterEndpoint{}, store.Credential{},
			fmt.Errorf("%w: context %q references unknown cluster %q", ErrNotFound, name, ctx.Cluster)
	}

	cred, ok := r.st.Credential(ctx.Credential)
	if !ok {
		return store.Context{}, store.ClusterEndpoint{}, store.Credential{},
			fmt.Errorf("%w: context %q references unknown credential %q", ErrNotFound, name, ctx.Credential)
	}

	return ctx, cluster, cred, nil
}
