package routine

import (
	"context"
	"math/rand"
	"testing"

	"github.com/badger-opt/badger/internal/env"
	"github.com/badger-opt/badger/internal/factory"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sphereRoutine() *Routine {
	return &Routine{
		Name:        "sphere-min",
		Description: "minimize f1 on the sphere test problem",
		Environment: EnvironmentSpec{Name: "sphere_2d"},
		Generator:   GeneratorSpec{Name: "neldermead", Params: map[string]any{"initial_step": 0.2}},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
		},
		Tags: []string{"test"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Routine)
		wantErr bool
	}{
		{"valid", func(*Routine) {}, false},
		{"no name", func(r *Routine) { r.Name = "" }, true},
		{"no environment", func(r *Routine) { r.Environment.Name = "" }, true},
		{"no generator", func(r *Routine) { r.Generator.Name = "" }, true},
		{"no vocs", func(r *Routine) { r.VOCS = nil }, true},
		{"bad critical constraint", func(r *Routine) {
			r.CriticalConstraintNames = []string{"ghost"}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sphereRoutine()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoutine_YAMLRoundTrip(t *testing.T) {
	r := sphereRoutine()
	r.ID = "abc-123"
	r.VRangeLimitOptions = map[string]LimitOption{
		"x0": {Kind: LimitFullRange, RatioFull: 0.5},
	}
	r.InitialPointActions = []InitialPointAction{
		{Type: ActionAddCurrent},
		{Type: ActionAddRandom, NPoints: 3, Fraction: 0.1},
	}
	r.Formulas = map[string]string{"g": "`f1` * 2"}

	out, err := yaml.Marshal(r)
	require.NoError(t, err)

	var got Routine
	require.NoError(t, yaml.Unmarshal(out, &got))
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.Environment, got.Environment)
	assert.Equal(t, r.Generator.Name, got.Generator.Name)
	assert.Equal(t, r.VOCS.Variables, got.VOCS.Variables)
	assert.Equal(t, r.VRangeLimitOptions, got.VRangeLimitOptions)
	assert.Equal(t, r.InitialPointActions, got.InitialPointActions)
	assert.Equal(t, r.Formulas, got.Formulas)
}

func TestMaterialize_EvaluatesPoint(t *testing.T) {
	bound, err := Materialize(factory.Default(), sphereRoutine())
	require.NoError(t, err)
	require.NotNil(t, bound.Environment)
	assert.Equal(t, "neldermead", bound.Generator.Name())

	out, err := bound.Evaluate(context.Background(), map[string]float64{"x0": 0.5, "x1": 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out["f1"], 1e-12)
	assert.Contains(t, out, frame.TimestampColumn)
}

func TestMaterialize_FormulaOutput(t *testing.T) {
	r := sphereRoutine()
	r.VOCS.Observables = []string{"f2", "g"}
	r.Formulas = map[string]string{"g": "`f1` + `f2`"}

	bound, err := Materialize(factory.Default(), r)
	require.NoError(t, err)

	out, err := bound.Evaluate(context.Background(), map[string]float64{"x0": 0, "x1": 0})
	require.NoError(t, err)
	// f1 = 0, f2 = 0.25 at the origin.
	assert.InDelta(t, 0.25, out["f2"], 1e-12)
	assert.InDelta(t, 0.25, out["g"], 1e-12)
}

func TestMaterialize_Errors(t *testing.T) {
	r := sphereRoutine()
	r.Environment.Name = "nope"
	_, err := Materialize(factory.Default(), r)
	assert.Error(t, err)

	r = sphereRoutine()
	r.Generator.Name = "nope"
	_, err = Materialize(factory.Default(), r)
	assert.Error(t, err)

	r = sphereRoutine()
	r.Formulas = map[string]string{"g": "1 +"}
	_, err = Materialize(factory.Default(), r)
	assert.Error(t, err)
}

// fixedEnv reports constant current values for bound and initial point math.
type fixedEnv struct {
	env.Base
	current map[string]float64
	bounds  map[string]vocs.Bounds
}

func (e *fixedEnv) Name() string            { return "fixed" }
func (e *fixedEnv) VariableNames() []string { return []string{"x0", "x1"} }
func (e *fixedEnv) ObservableNames() []string {
	return nil
}

func (e *fixedEnv) Bounds(names []string) (map[string]vocs.Bounds, error) {
	out := make(map[string]vocs.Bounds, len(names))
	for _, name := range names {
		out[name] = e.bounds[name]
	}
	return out, nil
}

func (e *fixedEnv) GetVariables(_ context.Context, names []string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = e.current[name]
	}
	return out, nil
}

func TestCalculateVariableBounds(t *testing.T) {
	e := &fixedEnv{
		current: map[string]float64{"x0": 0.8, "x1": 0.5},
		bounds:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
	}
	v := &vocs.VOCS{
		Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
		Objectives: map[string]vocs.ObjectiveRule{"f": vocs.Minimize},
	}

	got, err := CalculateVariableBounds(context.Background(), map[string]LimitOption{
		"x0": {Kind: LimitFullRange, RatioFull: 0.5},
		"x1": {Kind: LimitCurrentValue, RatioCurr: 0.4},
	}, v, e)
	require.NoError(t, err)

	// x0: window of 0.5*2 = 1.0 centered at 0.8, clipped to the hard upper.
	assert.InDelta(t, 0.3, got["x0"][0], 1e-12)
	assert.InDelta(t, 1.0, got["x0"][1], 1e-12)
	// x1: 0.5 * (1 -/+ 0.2).
	assert.InDelta(t, 0.4, got["x1"][0], 1e-12)
	assert.InDelta(t, 0.6, got["x1"][1], 1e-12)
}

func TestCalculateVariableBounds_SkipsUnlisted(t *testing.T) {
	e := &fixedEnv{
		current: map[string]float64{"x0": 0, "x1": 0},
		bounds:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
	}
	v := &vocs.VOCS{
		Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
		Objectives: map[string]vocs.ObjectiveRule{"f": vocs.Minimize},
	}

	got, err := CalculateVariableBounds(context.Background(), map[string]LimitOption{
		"x0": {Kind: LimitFullRange, RatioFull: 0.2},
	}, v, e)
	require.NoError(t, err)
	assert.Contains(t, got, "x0")
	assert.NotContains(t, got, "x1")
}

func TestCalculateInitialPoints(t *testing.T) {
	e := &fixedEnv{
		current: map[string]float64{"x0": 0.2, "x1": -0.1},
		bounds:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
	}
	v := &vocs.VOCS{
		Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
		Objectives: map[string]vocs.ObjectiveRule{"f": vocs.Minimize},
	}
	rng := rand.New(rand.NewSource(1))

	points, err := CalculateInitialPoints(context.Background(), rng, []InitialPointAction{
		{Type: ActionAddCurrent},
		{Type: ActionAddRandom, NPoints: 4, Fraction: 0.1},
	}, v, e)
	require.NoError(t, err)
	require.Equal(t, 5, points.Len())

	first := points.Row(0)
	assert.Equal(t, 0.2, first["x0"])
	assert.Equal(t, -0.1, first["x1"])

	// Random points stay inside the local region around the current point.
	for i := 1; i < points.Len(); i++ {
		row := points.Row(i)
		assert.InDelta(t, 0.2, row["x0"], 0.1+1e-12)
		assert.InDelta(t, -0.1, row["x1"], 0.1+1e-12)
	}
}

func TestCalculateInitialPoints_UnknownAction(t *testing.T) {
	e := &fixedEnv{
		current: map[string]float64{"x0": 0, "x1": 0},
		bounds:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
	}
	v := &vocs.VOCS{
		Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
		Objectives: map[string]vocs.ObjectiveRule{"f": vocs.Minimize},
	}

	_, err := CalculateInitialPoints(context.Background(), rand.New(rand.NewSource(1)), []InitialPointAction{
		{Type: "teleport"},
	}, v, e)
	assert.Error(t, err)
}
