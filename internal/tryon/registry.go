package tryon

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/missmatchapp/missmatch/pkg/models"
)

// FallbackDriver is used by the implicit default path when no driver is
// configured. Explicit requests never fall back.
const FallbackDriver = "mock"

// DriverFactory constructs a driver. Returning an error means the driver is
// misconfigured (missing credentials); it is wrapped as ErrDriverConfig.
type DriverFactory func() (models.TryOnDriver, error)

// Registry maps driver names to factories. New providers are added through
// Register without touching any call site. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	defaultName string
	factories   map[string]DriverFactory
}

// NewRegistry creates an empty registry whose implicit default is
// defaultName (may be empty, meaning "fall back to mock").
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		defaultName: strings.ToLower(defaultName),
		factories:   make(map[string]DriverFactory),
	}
}

// Register adds or replaces a driver factory. Names are case-insensitive.
func (r *Registry) Register(name string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// DefaultName returns the name the implicit default path resolves to.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName != "" {
		if _, ok := r.factories[r.defaultName]; ok {
			return r.defaultName
		}
		slog.Warn("configured default driver not registered, falling back",
			"driver", r.defaultName, "fallback", FallbackDriver)
	}
	return FallbackDriver
}

// Create resolves name case-insensitively and constructs the driver. With an
// empty name the configured default is used, falling back to the mock driver
// (with a warning) when no default is registered. An explicit unknown name is
// an error naming the requested driver, never a silent substitution.
func (r *Registry) Create(name string) (models.TryOnDriver, error) {
	if name == "" {
		name = r.DefaultName()
	}
	key := strings.ToLower(name)

	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotRegistered, name)
	}

	driver, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDriverConfig, key, err)
	}
	return driver, nil
}

// SupportedDrivers enumerates registered names, sorted, for diagnostics.
func (r *Registry) SupportedDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
