package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/projectns/projectns/internal/config"
)

// FactoryFunc builds a backend from the storage section of the configuration.
type FactoryFunc func(*config.StorageConfig) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register makes a backend available under name. Registering a name twice replaces the
// earlier factory.
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the backend named by cfg.DefaultBackend.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.DefaultBackend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)", cfg.DefaultBackend, strings.Join(Backends(), ", "))
	}
	return factory(cfg)
}
