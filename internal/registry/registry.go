// Package registry holds the catalog of tools the gateway exposes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"calendar-mcp/internal/schema"
)

var (
	// ErrToolNotFound is returned by Get for an unknown name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrInvalidTool is returned by Register for an empty name or nil handler.
	ErrInvalidTool = errors.New("invalid tool")
)

// Handler performs a tool's operation on validated parameters. The result
// must be representable as plain JSON data.
type Handler interface {
	Handle(ctx context.Context, params schema.Params) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params schema.Params) (any, error)

// Handle calls f(ctx, params).
func (f HandlerFunc) Handle(ctx context.Context, params schema.Params) (any, error) {
	return f(ctx, params)
}

// Descriptor is a registered tool. It is never modified after registration.
type Descriptor struct {
	Name        string
	Description string
	Shape       schema.Shape
	Handler     Handler
}

// Registry maps tool names to descriptors and remembers registration order.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a tool. Names are unique; registering a taken name fails
// with ErrDuplicateTool and leaves the existing tool in place.
func (r *Registry) Register(name, description string, shape schema.Shape, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if h == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, name)
	}

	d := &Descriptor{
		Name:        name,
		Description: description,
		Shape: schema.Shape{
			Fields: slices.Clone(shape.Fields),
			Checks: slices.Clone(shape.Checks),
		},
		Handler: h,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.byName[name] = d
	// Readers keep iterating the old slice while a new one is published.
	next := make([]*Descriptor, len(r.ordered), len(r.ordered)+1)
	copy(next, r.ordered)
	r.ordered = append(next, d)
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return d, nil
}

func (r *Registry) snapshot() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered
}

// All yields every descriptor in registration order. The sequence reflects
// the catalog at the moment iteration starts.
func (r *Registry) All() iter.Seq[*Descriptor] {
	return func(yield func(*Descriptor) bool) {
		for _, d := range r.snapshot() {
			if !yield(d) {
				return
			}
		}
	}
}

// List returns the descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	return slices.Clone(r.snapshot())
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	snap := r.snapshot()
	names := make([]string, 0, len(snap))
	for _, d := range snap {
		names = append(names, d.Name)
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.snapshot())
}
