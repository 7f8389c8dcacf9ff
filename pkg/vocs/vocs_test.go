package vocs

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testVOCS() *VOCS {
	return &VOCS{
		Variables: map[string]Bounds{
			"x0": {-1, 1},
			"x1": {0, 2},
		},
		Objectives: map[string]ObjectiveRule{
			"f": Minimize,
		},
		Constraints: map[string]Constraint{
			"c": {Op: GreaterThan, Threshold: 0},
		},
		Observables: []string{"g"},
	}
}

func TestVOCS_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*VOCS)
		wantErr bool
	}{
		{name: "valid", mutate: func(*VOCS) {}},
		{
			name:    "no variables",
			mutate:  func(v *VOCS) { v.Variables = nil },
			wantErr: true,
		},
		{
			name:    "inverted bounds",
			mutate:  func(v *VOCS) { v.Variables["x0"] = Bounds{1, -1} },
			wantErr: true,
		},
		{
			name:    "unknown objective rule",
			mutate:  func(v *VOCS) { v.Objectives["f"] = "SIDEWAYS" },
			wantErr: true,
		},
		{
			name:    "unknown constraint op",
			mutate:  func(v *VOCS) { v.Constraints["c"] = Constraint{Op: "NEAR", Threshold: 1} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testVOCS()
			tt.mutate(v)
			err := v.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVOCS_Names(t *testing.T) {
	v := testVOCS()

	assert.Equal(t, []string{"x0", "x1"}, v.VariableNames())
	assert.Equal(t, []string{"f"}, v.ObjectiveNames())
	assert.Equal(t, []string{"c"}, v.ConstraintNames())
	assert.Equal(t, []string{"f", "c", "g"}, v.OutputNames())
}

func TestVOCS_RandomInputs(t *testing.T) {
	v := testVOCS()
	rng := rand.New(rand.NewSource(42))

	points := v.RandomInputs(rng, 100, nil)
	require.Len(t, points, 100)
	for _, p := range points {
		assert.True(t, v.Variables["x0"].Contains(p["x0"]))
		assert.True(t, v.Variables["x1"].Contains(p["x1"]))
	}

	// Custom bounds narrow the sampling region.
	custom := map[string]Bounds{"x0": {0.4, 0.6}}
	points = v.RandomInputs(rng, 50, custom)
	for _, p := range points {
		assert.GreaterOrEqual(t, p["x0"], 0.4)
		assert.LessOrEqual(t, p["x0"], 0.6)
	}
}

func TestVOCS_LocalRegion(t *testing.T) {
	v := testVOCS()

	region, err := v.LocalRegion(map[string]float64{"x0": 0.9, "x1": 1.0}, 0.2)
	require.NoError(t, err)

	// x0: half-width 0.2, clipped at the upper hard bound.
	assert.InDelta(t, 0.7, region["x0"].Lower(), 1e-12)
	assert.InDelta(t, 1.0, region["x0"].Upper(), 1e-12)
	// x1: symmetric region inside the hard bounds.
	assert.InDelta(t, 0.8, region["x1"].Lower(), 1e-12)
	assert.InDelta(t, 1.2, region["x1"].Upper(), 1e-12)

	_, err = v.LocalRegion(map[string]float64{"x0": 0.9}, 0.2)
	assert.Error(t, err, "missing current value should fail")
}

func TestVOCS_SelectBest(t *testing.T) {
	v := testVOCS()

	columns := map[string][]float64{
		"f": {3, 1, 2, 0.5},
		"c": {1, -1, 1, 1},
	}

	// Row 1 has the lowest f but violates c > 0.
	idx, val, err := v.SelectBest(columns)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 0.5, val)

	// Maximization flips the pick.
	v.Objectives["f"] = Maximize
	idx, val, err = v.SelectBest(columns)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 3.0, val)

	// All points infeasible.
	columns["c"] = []float64{-1, -1, -1, -1}
	_, _, err = v.SelectBest(columns)
	assert.ErrorIs(t, err, ErrNoFeasible)

	// Multi-objective selection is undefined.
	v.Objectives["f2"] = Minimize
	_, _, err = v.SelectBest(columns)
	assert.ErrorIs(t, err, ErrMultiObjective)
}

func TestConstraint_YAMLRoundTrip(t *testing.T) {
	v := testVOCS()

	out, err := yaml.Marshal(v)
	require.NoError(t, err)

	var got VOCS
	require.NoError(t, yaml.Unmarshal(out, &got))

	assert.Equal(t, v.Variables, got.Variables)
	assert.Equal(t, v.Objectives, got.Objectives)
	assert.Equal(t, v.Constraints, got.Constraints)
	assert.Equal(t, v.Observables, got.Observables)
}

func TestConstraint_UnmarshalErrors(t *testing.T) {
	var c Constraint
	assert.Error(t, yaml.Unmarshal([]byte(`{op: GREATER_THAN}`), &c))
	assert.Error(t, yaml.Unmarshal([]byte(`[GREATER_THAN]`), &c))
	assert.Error(t, yaml.Unmarshal([]byte(`[GREATER_THAN, zero]`), &c))
}
