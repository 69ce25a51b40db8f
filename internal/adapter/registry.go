package adapter

import (
	"slices"
	"strings"
	"sync"
)

// Factory builds an adapter from settings. Factories must not perform I/O;
// connecting happens in Adapter.Connect.
type Factory func(Settings) (Adapter, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
	aliases    = map[string]string{}
)

// Register makes a backend available under name and any aliases. Backends
// call it from init. Registering a name twice panics.
func Register(name string, f Factory, alias ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = strings.ToLower(name)
	if _, dup := factories[name]; dup {
		panic("adapter: Register called twice for " + name)
	}
	factories[name] = f
	for _, a := range alias {
		aliases[strings.ToLower(a)] = name
	}
}

// Resolve returns the canonical name for a backend name or alias.
func Resolve(name string) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	name = strings.ToLower(name)
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	_, ok := factories[name]
	return name, ok
}

// Open builds the adapter registered under name. It does not connect.
func Open(name string, s Settings) (Adapter, error) {
	canonical, ok := Resolve(name)
	if !ok {
		return nil, &UnknownBackendError{Name: name}
	}
	registryMu.RLock()
	f := factories[canonical]
	registryMu.RUnlock()
	if s.Driver == "" {
		s.Driver = canonical
	}
	return f(s)
}

// Backends returns the registered canonical names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
