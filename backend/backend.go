// Package backend keeps the registry of driver backends a library can connect to.
//
// Backend packages register themselves from init, the way database/sql drivers
// do; programs pull in the ones they want with blank imports.
package backend

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"gomemd/protocol"
)

// Options carries backend specific settings.
type Options struct {
	// SimFixture is a YAML fixture loaded by the simulated backend.
	SimFixture string
}

// Factory opens a backend.
type Factory func(opts Options) (protocol.Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available under name. It panics when name is
// registered twice or factory is nil.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	name = strings.ToLower(name)
	if factory == nil {
		panic("backend: Register factory is nil for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	factories[name] = factory
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend registered under name.
func Open(name string, opts Options) (protocol.Backend, error) {
	mu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(opts)
}

// PlatformDefault is the name of the native backend for the running OS.
func PlatformDefault() string {
	return runtime.GOOS
}

// Candidates lists the backends to try, in order: an explicit choice first,
// then the configured search order. Duplicates and blanks are dropped.
func Candidates(explicit string, order []string) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		result = append(result, name)
	}

	add(explicit)
	for _, name := range order {
		add(name)
	}
	return result
}
