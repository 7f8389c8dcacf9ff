// Package routine defines the central optimization record: which environment
// to drive, which generator to use, the problem definition and everything
// needed to reproduce a run. Routines serialize to YAML and materialize into
// runnable form through the plugin factory.
package routine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/badger-opt/badger/internal/env"
	"github.com/badger-opt/badger/internal/factory"
	"github.com/badger-opt/badger/internal/formula"
	"github.com/badger-opt/badger/internal/generator"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
)

// EnvironmentSpec names an environment plugin with its parameters.
type EnvironmentSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Interface string         `yaml:"interface,omitempty" json:"interface,omitempty"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// GeneratorSpec names a generator plugin with its parameters.
type GeneratorSpec struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// LimitOption narrows a variable's search range before a run. Exactly one of
// the two ratios applies, selected by Kind.
type LimitOption struct {
	Kind      LimitKind `yaml:"kind" json:"kind"`
	RatioFull float64   `yaml:"ratio_full,omitempty" json:"ratio_full,omitempty"`
	RatioCurr float64   `yaml:"ratio_curr,omitempty" json:"ratio_curr,omitempty"`
}

// LimitKind selects how a limit option derives the narrowed range.
type LimitKind string

const (
	// LimitFullRange centers a window of ratio_full times the hard range on
	// the current value.
	LimitFullRange LimitKind = "ratio_full"
	// LimitCurrentValue spans ratio_curr times the current value around it.
	LimitCurrentValue LimitKind = "ratio_curr"
)

// InitialPointAction describes how initial evaluation points are assembled.
type InitialPointAction struct {
	Type     string  `yaml:"type" json:"type"`
	NPoints  int     `yaml:"n_points,omitempty" json:"n_points,omitempty"`
	Fraction float64 `yaml:"fraction,omitempty" json:"fraction,omitempty"`
}

// Initial point action types.
const (
	ActionAddCurrent = "add_curr"
	ActionAddRandom  = "add_rand"
)

// Routine is the full persisted description of an optimization task.
type Routine struct {
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Environment EnvironmentSpec `yaml:"environment" json:"environment"`
	Generator   GeneratorSpec   `yaml:"generator" json:"generator"`
	VOCS        *vocs.VOCS      `yaml:"vocs" json:"vocs"`

	InitialPoints           *frame.Frame           `yaml:"initial_points,omitempty" json:"initial_points,omitempty"`
	CriticalConstraintNames []string               `yaml:"critical_constraint_names,omitempty" json:"critical_constraint_names,omitempty"`
	Tags                    []string               `yaml:"tags,omitempty" json:"tags,omitempty"`
	Script                  string                 `yaml:"script,omitempty" json:"script,omitempty"`
	RelativeToCurrent       bool                   `yaml:"relative_to_current,omitempty" json:"relative_to_current,omitempty"`
	VRangeLimitOptions      map[string]LimitOption `yaml:"vrange_limit_options,omitempty" json:"vrange_limit_options,omitempty"`
	VRangeHardLimit         map[string]vocs.Bounds `yaml:"vrange_hard_limit,omitempty" json:"vrange_hard_limit,omitempty"`
	InitialPointActions     []InitialPointAction   `yaml:"initial_point_actions,omitempty" json:"initial_point_actions,omitempty"`
	AdditionalVariables     []string               `yaml:"additional_variables,omitempty" json:"additional_variables,omitempty"`
	Formulas                map[string]string      `yaml:"formulas,omitempty" json:"formulas,omitempty"`

	BadgerVersion string    `yaml:"badger_version,omitempty" json:"badger_version,omitempty"`
	CreationTime  time.Time `yaml:"creation_time,omitempty" json:"creation_time,omitempty"`
}

// Validate checks the routine before materialization.
func (r *Routine) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("routine has no name")
	}
	if r.Environment.Name == "" {
		return fmt.Errorf("routine %s names no environment", r.Name)
	}
	if r.Generator.Name == "" {
		return fmt.Errorf("routine %s names no generator", r.Name)
	}
	if r.VOCS == nil {
		return fmt.Errorf("routine %s has no problem definition", r.Name)
	}
	if err := r.VOCS.Validate(); err != nil {
		return fmt.Errorf("routine %s: %w", r.Name, err)
	}
	for _, name := range r.CriticalConstraintNames {
		if _, ok := r.VOCS.Constraints[name]; !ok {
			return fmt.Errorf("routine %s: critical constraint %s is not a constraint", r.Name, name)
		}
	}
	return nil
}

// Bound is a routine materialized against live plugins: the environment is
// instantiated, the generator constructed and the evaluator ready to run.
type Bound struct {
	Routine *Routine

	Environment *env.Checked
	Generator   generator.Generator

	formulas map[string]*formula.Formula
	now      func() time.Time
}

// Materialize instantiates the routine's environment and generator from the
// registry and compiles its formulas.
func Materialize(reg *factory.Registry, r *Routine) (*Bound, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	e, err := reg.Environment(r.Environment.Name, r.Environment.Interface, r.Environment.Params)
	if err != nil {
		return nil, err
	}
	checked := env.NewChecked(e, r.VRangeHardLimit)

	g, err := reg.Generator(r.Generator.Name, r.VOCS, r.Generator.Params)
	if err != nil {
		return nil, err
	}

	formulas := make(map[string]*formula.Formula, len(r.Formulas))
	for name, expr := range r.Formulas {
		f, err := formula.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("routine %s: formula %s: %w", r.Name, name, err)
		}
		formulas[name] = f
	}

	return &Bound{
		Routine:     r,
		Environment: checked,
		Generator:   g,
		formulas:    formulas,
		now:         time.Now,
	}, nil
}

// Evaluate sets the candidate point on the environment, reads every output
// the problem declares, applies the routine's formulas and stamps the result
// with the evaluation time.
func (b *Bound) Evaluate(ctx context.Context, point map[string]float64) (map[string]float64, error) {
	if err := b.Environment.SetVariables(ctx, point); err != nil {
		return nil, err
	}

	// Formula outputs are computed locally, everything else is read from the
	// environment.
	var read []string
	for _, name := range b.Routine.VOCS.OutputNames() {
		if _, ok := b.formulas[name]; !ok {
			read = append(read, name)
		}
	}

	outputs, err := b.Environment.GetObservables(ctx, read)
	if err != nil {
		return nil, err
	}
	if len(b.Routine.AdditionalVariables) > 0 {
		extra, err := b.Environment.GetVariables(ctx, b.Routine.AdditionalVariables)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			outputs[k] = v
		}
	}

	inputs := make(map[string]float64, len(point)+len(outputs))
	for k, v := range point {
		inputs[k] = v
	}
	for k, v := range outputs {
		inputs[k] = v
	}
	for name, f := range b.formulas {
		val, err := f.Eval(inputs)
		if err != nil {
			return nil, fmt.Errorf("formula %s: %w", name, err)
		}
		outputs[name] = val
		inputs[name] = val
	}

	outputs[frame.TimestampColumn] = float64(b.now().UnixNano()) / 1e9
	return outputs, nil
}

// CalculateVariableBounds derives narrowed search ranges from limit options,
// anchored at the current machine values and clipped to the hard bounds.
func CalculateVariableBounds(ctx context.Context, options map[string]LimitOption, v *vocs.VOCS, e env.Environment) (map[string]vocs.Bounds, error) {
	names := v.VariableNames()
	current, err := e.GetVariables(ctx, names)
	if err != nil {
		return nil, err
	}
	hard, err := e.Bounds(names)
	if err != nil {
		return nil, err
	}

	updated := make(map[string]vocs.Bounds)
	for _, name := range names {
		opt, ok := options[name]
		if !ok {
			continue
		}
		hb, ok := hard[name]
		if !ok {
			return nil, fmt.Errorf("environment reports no bounds for variable %s", name)
		}
		curr := current[name]

		var lo, hi float64
		switch opt.Kind {
		case LimitFullRange:
			delta := 0.5 * opt.RatioFull * (hb[1] - hb[0])
			lo, hi = curr-delta, curr+delta
		case LimitCurrentValue:
			sign := 1.0
			if curr < 0 {
				sign = -1.0
			} else if curr == 0 {
				sign = 0
			}
			lo = curr * (1 - 0.5*sign*opt.RatioCurr)
			hi = curr * (1 + 0.5*sign*opt.RatioCurr)
		default:
			return nil, fmt.Errorf("unknown limit option kind %q for variable %s", opt.Kind, name)
		}

		lo = math.Max(hb[0], math.Min(hb[1], lo))
		hi = math.Max(hb[0], math.Min(hb[1], hi))
		updated[name] = vocs.Bounds{lo, hi}
	}
	return updated, nil
}

// CalculateInitialPoints assembles the initial evaluation points from the
// configured actions. add_curr appends the current machine point, add_rand
// samples inside a local region around it.
func CalculateInitialPoints(ctx context.Context, rng *rand.Rand, actions []InitialPointAction, v *vocs.VOCS, e env.Environment) (*frame.Frame, error) {
	names := v.VariableNames()
	points := frame.New()

	for _, action := range actions {
		current, err := e.GetVariables(ctx, names)
		if err != nil {
			return nil, err
		}
		switch action.Type {
		case ActionAddCurrent:
			if err := points.AppendRow(current); err != nil {
				return nil, err
			}
		case ActionAddRandom:
			region, err := v.LocalRegion(current, action.Fraction)
			if err != nil {
				return nil, err
			}
			for _, p := range v.RandomInputs(rng, action.NPoints, region) {
				if err := points.AppendRow(p); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unknown initial point action %q", action.Type)
		}
	}
	return points, nil
}
