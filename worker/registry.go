// Package worker runs units of work for transforms, either in-process on a
// bounded goroutine pool or in worker processes reached over ipc frames.
//
// A unit type is a named function over typed parameters. Parameters must
// be msgpack-encodable so the same unit can run in either pool.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pithecene-io/buildout/ipc"
)

// Params are the parameters of one unit. OutputPath is the file the unit
// produces, or "" if it produces nothing a manifest should record.
type Params interface {
	OutputPath() string
}

type unitEntry struct {
	run    func(ctx context.Context, params Params) error
	decode func(data []byte) (Params, error)
}

// Registry maps unit type names to implementations.
type Registry struct {
	mu    sync.RWMutex
	units map[string]unitEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]unitEntry)}
}

// Register adds unit type name running fn over parameters of type P.
func Register[P Params](r *Registry, name string, fn func(ctx context.Context, params P) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[name]; ok {
		return fmt.Errorf("unit type %q already registered", name)
	}
	r.units[name] = unitEntry{
		run: func(ctx context.Context, params Params) error {
			p, ok := params.(P)
			if !ok {
				return fmt.Errorf("unit %s: unexpected parameter type %T", name, params)
			}
			return fn(ctx, p)
		},
		decode: func(data []byte) (Params, error) {
			var p P
			if err := ipc.DecodeParams(data, &p); err != nil {
				return nil, fmt.Errorf("unit %s: decode parameters: %w", name, err)
			}
			return p, nil
		},
	}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[name]
	return ok
}

// Names returns the registered unit type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (unitEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	if !ok {
		return unitEntry{}, fmt.Errorf("unknown unit type %q", name)
	}
	return u, nil
}

// Run executes unit name with params in the calling goroutine.
func (r *Registry) Run(ctx context.Context, name string, params Params) error {
	u, err := r.lookup(name)
	if err != nil {
		return err
	}
	return u.run(ctx, params)
}

// RunEncoded decodes msgpack parameters and executes unit name.
func (r *Registry) RunEncoded(ctx context.Context, name string, data []byte) error {
	u, err := r.lookup(name)
	if err != nil {
		return err
	}
	params, err := u.decode(data)
	if err != nil {
		return err
	}
	return u.run(ctx, params)
}
