// Package factory is the plugin seam: named constructors for environments,
// machine interfaces and generators. Plugins register themselves at init
// time; routines refer to them by name only.
package factory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/badger-opt/badger/internal/env"
	"github.com/badger-opt/badger/internal/generator"
	"github.com/badger-opt/badger/pkg/vocs"
)

// ErrPluginNotFound is wrapped into lookup failures for unknown names.
type ErrPluginNotFound struct {
	Kind string
	Name string
}

func (e *ErrPluginNotFound) Error() string {
	return fmt.Sprintf("%s plugin %q not found", e.Kind, e.Name)
}

// EnvironmentFactory builds an environment with an optional interface and
// plugin parameters.
type EnvironmentFactory func(intf env.Interface, params map[string]any) (env.Environment, error)

// InterfaceFactory builds a machine interface from plugin parameters.
type InterfaceFactory func(params map[string]any) (env.Interface, error)

// GeneratorFactory builds a generator bound to a problem definition.
type GeneratorFactory func(v *vocs.VOCS, params map[string]any) (generator.Generator, error)

// EnvironmentPlugin couples an environment constructor with its metadata.
type EnvironmentPlugin struct {
	New EnvironmentFactory
	// DefaultInterface is the interface plugin instantiated when a routine
	// does not name one. Empty for self-contained environments.
	DefaultInterface string
	// Params holds the default parameter values.
	Params map[string]any
}

// InterfacePlugin couples an interface constructor with default params.
type InterfacePlugin struct {
	New    InterfaceFactory
	Params map[string]any
}

// GeneratorPlugin couples a generator constructor with default params.
type GeneratorPlugin struct {
	New    GeneratorFactory
	Params map[string]any
}

// Registry holds the three plugin namespaces.
type Registry struct {
	mu         sync.RWMutex
	envs       map[string]EnvironmentPlugin
	interfaces map[string]InterfacePlugin
	generators map[string]GeneratorPlugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		envs:       make(map[string]EnvironmentPlugin),
		interfaces: make(map[string]InterfacePlugin),
		generators: make(map[string]GeneratorPlugin),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that built-in plugins register
// into.
func Default() *Registry { return defaultRegistry }

// RegisterEnvironment adds an environment plugin. Re-registering a name is an
// error.
func (r *Registry) RegisterEnvironment(name string, plugin EnvironmentPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envs[name]; ok {
		return fmt.Errorf("environment plugin %q already registered", name)
	}
	r.envs[name] = plugin
	return nil
}

// RegisterInterface adds an interface plugin.
func (r *Registry) RegisterInterface(name string, plugin InterfacePlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interfaces[name]; ok {
		return fmt.Errorf("interface plugin %q already registered", name)
	}
	r.interfaces[name] = plugin
	return nil
}

// RegisterGenerator adds a generator plugin.
func (r *Registry) RegisterGenerator(name string, plugin GeneratorPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; ok {
		return fmt.Errorf("generator plugin %q already registered", name)
	}
	r.generators[name] = plugin
	return nil
}

// Environment instantiates the named environment plugin. When intfName is
// empty the plugin's default interface (if any) is used; overrides are merged
// over the plugin's default params.
func (r *Registry) Environment(name, intfName string, overrides map[string]any) (env.Environment, error) {
	r.mu.RLock()
	plugin, ok := r.envs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrPluginNotFound{Kind: "environment", Name: name}
	}

	if intfName == "" {
		intfName = plugin.DefaultInterface
	}
	var intf env.Interface
	if intfName != "" {
		var err error
		intf, err = r.Interface(intfName, nil)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", name, err)
		}
	}

	e, err := plugin.New(intf, mergeParams(plugin.Params, overrides))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate environment %s: %w", name, err)
	}
	return e, nil
}

// Interface instantiates the named interface plugin.
func (r *Registry) Interface(name string, overrides map[string]any) (env.Interface, error) {
	r.mu.RLock()
	plugin, ok := r.interfaces[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrPluginNotFound{Kind: "interface", Name: name}
	}
	intf, err := plugin.New(mergeParams(plugin.Params, overrides))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate interface %s: %w", name, err)
	}
	return intf, nil
}

// Generator instantiates the named generator plugin for a problem.
func (r *Registry) Generator(name string, v *vocs.VOCS, overrides map[string]any) (generator.Generator, error) {
	r.mu.RLock()
	plugin, ok := r.generators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrPluginNotFound{Kind: "generator", Name: name}
	}
	g, err := plugin.New(v, mergeParams(plugin.Params, overrides))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate generator %s: %w", name, err)
	}
	return g, nil
}

// ListEnvironments returns the registered environment names, sorted.
func (r *Registry) ListEnvironments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.envs)
}

// ListInterfaces returns the registered interface names, sorted.
func (r *Registry) ListInterfaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.interfaces)
}

// ListGenerators returns the registered generator names, sorted.
func (r *Registry) ListGenerators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.generators)
}

// PluginInfo is the metadata shown for an environment plugin.
type PluginInfo struct {
	Name        string
	Variables   map[string]vocs.Bounds
	Observables []string
	Params      map[string]any
	Interface   string
}

// Describe instantiates the named environment and reports its variables with
// bounds, observables and default params.
func (r *Registry) Describe(name string) (*PluginInfo, error) {
	r.mu.RLock()
	plugin, ok := r.envs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrPluginNotFound{Kind: "environment", Name: name}
	}

	e, err := r.Environment(name, "", nil)
	if err != nil {
		return nil, err
	}
	bounds, err := e.Bounds(e.VariableNames())
	if err != nil {
		return nil, fmt.Errorf("failed to read bounds of environment %s: %w", name, err)
	}
	return &PluginInfo{
		Name:        name,
		Variables:   bounds,
		Observables: e.ObservableNames(),
		Params:      mergeParams(plugin.Params, nil),
		Interface:   plugin.DefaultInterface,
	}, nil
}

func mergeParams(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func sortedNames[M ~map[string]V, V any](m M) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
