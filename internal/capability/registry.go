package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownCapability indicates an invocation named a capability that
	// is not registered.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrInvalidArguments indicates invocation arguments failed schema
	// validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Registry keeps the mapping between capability names and implementations.
// Describe returns descriptors in registration order, which is the order
// they are advertised to the completion service.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
	order        []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

// Register inserts a capability when its name is not in use
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return fmt.Errorf("capability is nil")
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("capability name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[name]; exists {
		return fmt.Errorf("capability %s already registered", name)
	}

	r.capabilities[name] = c
	r.order = append(r.order, name)
	return nil
}

// Describe produces the ordered descriptor list for prompt construction
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		c := r.capabilities[name]
		descriptors = append(descriptors, Descriptor{
			Name:        c.Name(),
			Description: c.Description(),
			Schema:      c.Schema(),
		})
	}
	return descriptors
}

// Dispatch validates arguments against the capability's schema and
// executes it. Unregistered names fail with ErrUnknownCapability,
// validation failures with ErrInvalidArguments.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	c, exists := r.capabilities[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	if schema := c.Schema(); schema != nil {
		if err := validateArgs(args, schema); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}

	return c.Execute(ctx, args)
}
