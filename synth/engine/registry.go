package engine

import (
	"errors"
	"fmt"
)

var errDuplicateModuleType = errors.New("duplicate module type")

// Registry maps module type names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given module type.
func (r *Registry) Register(moduleType string, factory Factory) error {
	if moduleType == "" {
		return errors.New("empty module type")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.factories[moduleType]; exists {
		return fmt.Errorf("%w: %s", errDuplicateModuleType, moduleType)
	}

	r.factories[moduleType] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(moduleType string, factory Factory) {
	err := r.Register(moduleType, factory)
	if err != nil {
		panic("engine registry: " + err.Error())
	}
}

// Lookup returns the factory for the given module type, or nil.
func (r *Registry) Lookup(moduleType string) Factory {
	return r.factories[moduleType]
}

// Types returns the registered module type names.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}

	return types
}
