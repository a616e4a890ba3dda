package build

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Engine turns a resolved component into build output.
type Engine interface {
	Name() string
	// Build runs the job and returns the path of the build output.
	Build(ctx context.Context, r *Runner, job Job) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Engine{}
)

// Register adds an engine constructor to the global registry.
// Called from init() in each engine package.
func Register(name string, constructor func() Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("build: duplicate engine registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named engine.
func Get(name string) (Engine, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("build: unknown engine: %s", name)
	}
	return ctor(), nil
}

// All returns sorted names of all registered engines.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
