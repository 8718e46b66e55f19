package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is a typed job definition. The job's Args are decoded into T
// through JSON before the handler runs.
type Definition[T any] struct {
	// Name is the job type the definition is registered under.
	Name string

	// Handler processes one attempt.
	Handler func(ctx context.Context, h *Handle, in T) error

	// OnFailed, when set, is called once the job is quarantined.
	OnFailed func(ctx context.Context, in T, err error) error
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, h *Handle, in T) error) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}

// WithFailed sets the quarantine callback and returns d.
func (d *Definition[T]) WithFailed(fn func(ctx context.Context, in T, err error) error) *Definition[T] {
	d.OnFailed = fn
	return d
}

type definitionHandler[T any] struct {
	def *Definition[T]
}

func (d definitionHandler[T]) Fire(ctx context.Context, h *Handle, args Args) error {
	in, err := decodeArgs[T](args)
	if err != nil {
		return fmt.Errorf("decode args for job %q: %w", d.def.Name, err)
	}
	return d.def.Handler(ctx, h, in)
}

func (d definitionHandler[T]) Failed(ctx context.Context, args Args, cause error) error {
	if d.def.OnFailed == nil {
		return nil
	}
	in, err := decodeArgs[T](args)
	if err != nil {
		return fmt.Errorf("decode args for job %q: %w", d.def.Name, err)
	}
	return d.def.OnFailed(ctx, in, cause)
}

func decodeArgs[T any](args Args) (T, error) {
	var t T
	if len(args) == 0 {
		return t, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(b, &t); err != nil {
		return t, err
	}
	return t, nil
}
