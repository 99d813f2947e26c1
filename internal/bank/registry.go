package bank

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/config"
)

// Factory builds a provider from configuration.
type Factory func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Provider, error)

// Registry holds named provider factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Panics on duplicate name.
func (r *Registry) Register(name string, f Factory) {
	key := strings.ToLower(name)
	if _, ok := r.factories[key]; ok {
		panic("duplicate bank provider: " + key)
	}
	r.factories[key] = f
}

// Get returns the factory for name, or nil.
func (r *Registry) Get(name string) Factory {
	return r.factories[strings.ToLower(name)]
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
