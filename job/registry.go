package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/jobqueue"
)

// Handler executes a job. Handlers acknowledge success by calling
// h.Delete; a handler that returns nil without deleting leaves the record
// leased until its reservation expires.
type Handler interface {
	Fire(ctx context.Context, h *Handle, args Args) error
}

// FailedHandler is implemented by handlers that want to be told when their
// job is quarantined.
type FailedHandler interface {
	Failed(ctx context.Context, args Args, err error) error
}

// Resolver looks up the handler for a job type.
type Resolver interface {
	Resolve(name string) (Handler, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, h *Handle, args Args) error

// Fire calls f.
func (f HandlerFunc) Fire(ctx context.Context, h *Handle, args Args) error {
	return f(ctx, h, args)
}

// Registry maps job type names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds name to h, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterFunc binds name to fn.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, h *Handle, args Args) error) {
	r.Register(name, HandlerFunc(fn))
}

// RegisterDefinition registers a typed job definition.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Name, definitionHandler[T]{def: def})
}

// Resolve returns the handler for name, or an error wrapping
// jobqueue.ErrJobNotFound.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", jobqueue.ErrJobNotFound, name)
	}
	return h, nil
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
