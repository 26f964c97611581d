package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fanoutllm/fanout/types"
)

// Registry maps provider identifiers to adapters. It is constructed by the
// caller and passed into the batch engine explicitly; there is no hidden
// process-wide registration.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Completer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Completer)}
}

// Register adds an adapter under its own name, replacing any previous one.
func (r *Registry) Register(c Completer) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[c.Name()] = c
	return r
}

// Get returns the adapter for a provider identifier. Unknown identifiers
// are a configuration error, fatal for the whole batch.
func (r *Registry) Get(name string) (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.adapters[name]
	if !ok {
		return nil, types.NewError(types.ErrUnknownProvider,
			fmt.Sprintf("unknown provider %q (registered: %v)", name, r.names()))
	}
	return c, nil
}

// Names returns the registered provider identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
