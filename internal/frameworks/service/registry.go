package service

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// CoreServices lists the services the server always constructs, in mount
// order.
var CoreServices = []string{"api"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register registers a service constructor by name. Duplicate registration
// is an error.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is like Register but panics on error. For init().
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor registered under name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	newFunc := registry[name]
	registryMu.RUnlock()
	return newFunc
}

// RegisteredServices returns the sorted names of all registered services.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// resetRegistry is for testing only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
