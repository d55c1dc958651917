package store

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Factory creates a driver from its raw config section ([store.drivers.<name>]).
// Drivers decode conf themselves via cfg.Decode.
type Factory func(conf map[string]any, log *slog.Logger) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance by name. The driver is not initialized;
// callers must call Init before use.
func New(name string, conf map[string]any, log *slog.Logger) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store driver: %s (available: %v)", name, AvailableDrivers())
	}

	return factory(conf, log)
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
