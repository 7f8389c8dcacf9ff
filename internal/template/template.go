// Package template manages reusable routine templates: named YAML files
// under the template root that pre-fill a routine's environment, generator,
// problem definition, range options and safety settings.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/vocs"
	"gopkg.in/yaml.v3"
)

// Template is the persisted routine scaffold.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Environment routine.EnvironmentSpec `yaml:"environment"`
	Generator   routine.GeneratorSpec   `yaml:"generator"`
	VOCS        *vocs.VOCS              `yaml:"vocs,omitempty"`

	VRangeLimitOptions      map[string]routine.LimitOption `yaml:"vrange_limit_options,omitempty"`
	InitialPointActions     []routine.InitialPointAction   `yaml:"initial_point_actions,omitempty"`
	CriticalConstraintNames []string                       `yaml:"critical_constraint_names,omitempty"`
	RelativeToCurrent       bool                           `yaml:"relative_to_current,omitempty"`
}

// Validate checks the template before saving.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template has no name")
	}
	if t.Environment.Name == "" {
		return fmt.Errorf("template %s names no environment", t.Name)
	}
	if t.Generator.Name == "" {
		return fmt.Errorf("template %s names no generator", t.Name)
	}
	if t.VOCS != nil {
		if err := t.VOCS.Validate(); err != nil {
			return fmt.Errorf("template %s: %w", t.Name, err)
		}
	}
	return nil
}

// Store reads and writes templates under a root directory.
type Store struct {
	root string
}

// NewStore opens (creating if needed) the template root.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the template root directory.
func (s *Store) Root() string { return s.root }

// Save writes a template as <root>/<name>.yaml.
func (s *Store) Save(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	out, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", t.Name, err)
	}
	if err := os.WriteFile(s.path(t.Name), out, 0o644); err != nil {
		return fmt.Errorf("failed to write template %s: %w", t.Name, err)
	}
	return nil
}

// Load reads a template by name.
func (s *Store) Load(name string) (*Template, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &t, nil
}

// List returns the stored template names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read template root: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a template by name.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name+".yaml")
}

// Apply fills a routine's absent fields from the template without clobbering
// values the user already set.
func Apply(t *Template, r *routine.Routine) {
	if r.Environment.Name == "" {
		r.Environment = t.Environment
	}
	if r.Generator.Name == "" {
		r.Generator = t.Generator
	}
	if r.VOCS == nil && t.VOCS != nil {
		r.VOCS = t.VOCS
	}
	if r.VRangeLimitOptions == nil {
		r.VRangeLimitOptions = t.VRangeLimitOptions
	}
	if r.InitialPointActions == nil {
		r.InitialPointActions = t.InitialPointActions
	}
	if r.CriticalConstraintNames == nil {
		r.CriticalConstraintNames = t.CriticalConstraintNames
	}
	if !r.RelativeToCurrent {
		r.RelativeToCurrent = t.RelativeToCurrent
	}
}

// MergeDefaults fills keys absent from config with the template's values,
// leaving present keys untouched, and writes the result to configPath. When
// configPath does not exist the template is written as-is.
func MergeDefaults(templatePath, configPath string) error {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", templatePath, err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return fmt.Errorf("failed to parse template file %s: %w", templatePath, err)
	}

	merged := defaults
	if existing, err := os.ReadFile(configPath); err == nil {
		var current map[string]any
		if err := yaml.Unmarshal(existing, &current); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		if current == nil {
			current = make(map[string]any)
		}
		for key, value := range defaults {
			if _, ok := current[key]; !ok {
				current[key] = value
			}
		}
		merged = current
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}
