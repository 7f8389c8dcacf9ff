// Package vocs defines the optimization problem description: variables with
// bounds, objectives with a direction, constraints with a threshold, and
// free-floating observables. A VOCS value is embedded in every routine and
// serialized verbatim into archived runs.
package vocs

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gopkg.in/yaml.v3"
)

// ObjectiveRule is the optimization direction of an objective.
type ObjectiveRule string

const (
	Minimize ObjectiveRule = "MINIMIZE"
	Maximize ObjectiveRule = "MAXIMIZE"
)

// ConstraintOp compares an output value against a threshold.
type ConstraintOp string

const (
	GreaterThan ConstraintOp = "GREATER_THAN"
	LessThan    ConstraintOp = "LESS_THAN"
)

// Bounds holds the [lower, upper] range of a variable.
type Bounds [2]float64

// Lower returns the lower bound.
func (b Bounds) Lower() float64 { return b[0] }

// Upper returns the upper bound.
func (b Bounds) Upper() float64 { return b[1] }

// Contains reports whether v lies within the bounds (inclusive).
func (b Bounds) Contains(v float64) bool { return v >= b[0] && v <= b[1] }

// Clip limits v to the bounds.
func (b Bounds) Clip(v float64) float64 {
	if v < b[0] {
		return b[0]
	}
	if v > b[1] {
		return b[1]
	}
	return v
}

// Constraint is a threshold condition on an output.
// It serializes as the two-element list [op, threshold].
type Constraint struct {
	Op        ConstraintOp
	Threshold float64
}

// Satisfied reports whether the value meets the constraint.
func (c Constraint) Satisfied(v float64) bool {
	switch c.Op {
	case GreaterThan:
		return v > c.Threshold
	case LessThan:
		return v < c.Threshold
	}
	return false
}

// MarshalYAML renders the constraint as [op, threshold].
func (c Constraint) MarshalYAML() (any, error) {
	return []any{string(c.Op), c.Threshold}, nil
}

// UnmarshalYAML parses the [op, threshold] list form.
func (c *Constraint) UnmarshalYAML(node *yaml.Node) error {
	var raw []yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("constraint must be a [op, threshold] list: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("constraint must have exactly 2 elements, got %d", len(raw))
	}
	var op string
	if err := raw[0].Decode(&op); err != nil {
		return fmt.Errorf("invalid constraint operator: %w", err)
	}
	var threshold float64
	if err := raw[1].Decode(&threshold); err != nil {
		return fmt.Errorf("invalid constraint threshold: %w", err)
	}
	c.Op = ConstraintOp(op)
	c.Threshold = threshold
	return nil
}

// VOCS is the problem definition: Variables, Objectives, Constraints and
// Observables.
type VOCS struct {
	Variables   map[string]Bounds        `yaml:"variables" json:"variables"`
	Objectives  map[string]ObjectiveRule `yaml:"objectives" json:"objectives"`
	Constraints map[string]Constraint    `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Observables []string                 `yaml:"observables,omitempty" json:"observables,omitempty"`
}

// Validate checks bounds ordering and known objective/constraint rules.
func (v *VOCS) Validate() error {
	if len(v.Variables) == 0 {
		return errors.New("vocs has no variables")
	}
	for name, b := range v.Variables {
		if b[1] <= b[0] {
			return fmt.Errorf("invalid bounds for variable %s: [%g, %g]", name, b[0], b[1])
		}
	}
	for name, rule := range v.Objectives {
		if rule != Minimize && rule != Maximize {
			return fmt.Errorf("unknown objective rule %q for %s", rule, name)
		}
	}
	for name, c := range v.Constraints {
		if c.Op != GreaterThan && c.Op != LessThan {
			return fmt.Errorf("unknown constraint operator %q for %s", c.Op, name)
		}
	}
	return nil
}

// VariableNames returns the variable names in sorted order.
func (v *VOCS) VariableNames() []string { return sortedKeys(v.Variables) }

// ObjectiveNames returns the objective names in sorted order.
func (v *VOCS) ObjectiveNames() []string { return sortedKeys(v.Objectives) }

// ConstraintNames returns the constraint names in sorted order.
func (v *VOCS) ConstraintNames() []string { return sortedKeys(v.Constraints) }

// ObservableNames returns the observables in sorted order.
func (v *VOCS) ObservableNames() []string {
	names := append([]string(nil), v.Observables...)
	sort.Strings(names)
	return names
}

// OutputNames is the union of objectives, constraints and observables, in
// that group order, deduplicated.
func (v *VOCS) OutputNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{v.ObjectiveNames(), v.ConstraintNames(), v.ObservableNames()} {
		for _, name := range group {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// RandomInputs draws n uniform points inside the variable bounds. Entries in
// custom override the hard bounds for the named variables.
func (v *VOCS) RandomInputs(rng *rand.Rand, n int, custom map[string]Bounds) []map[string]float64 {
	points := make([]map[string]float64, n)
	names := v.VariableNames()
	for i := range points {
		point := make(map[string]float64, len(names))
		for _, name := range names {
			b := v.Variables[name]
			if cb, ok := custom[name]; ok {
				b = cb
			}
			point[name] = b[0] + rng.Float64()*(b[1]-b[0])
		}
		points[i] = point
	}
	return points
}

// LocalRegion shrinks the bounds around the current point to the given
// fraction of the full range, clipped to the hard bounds.
func (v *VOCS) LocalRegion(current map[string]float64, fraction float64) (map[string]Bounds, error) {
	region := make(map[string]Bounds, len(v.Variables))
	for _, name := range v.VariableNames() {
		center, ok := current[name]
		if !ok {
			return nil, fmt.Errorf("no current value for variable %s", name)
		}
		hard := v.Variables[name]
		delta := 0.5 * fraction * (hard[1] - hard[0])
		region[name] = Bounds{
			hard.Clip(center - delta),
			hard.Clip(center + delta),
		}
	}
	return region, nil
}

// Feasible reports whether a full output sample satisfies every constraint.
func (v *VOCS) Feasible(outputs map[string]float64) bool {
	for name, c := range v.Constraints {
		val, ok := outputs[name]
		if !ok || !c.Satisfied(val) {
			return false
		}
	}
	return true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
