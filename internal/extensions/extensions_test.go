package extensions

import (
	"errors"
	"testing"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monoRoutine() *routine.Routine {
	return &routine.Routine{
		Name:        "mono",
		Environment: routine.EnvironmentSpec{Name: "sphere_2d"},
		Generator:   routine.GeneratorSpec{Name: "random"},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
		},
	}
}

func multiRoutine() *routine.Routine {
	r := monoRoutine()
	r.Name = "multi"
	r.VOCS.Objectives = map[string]vocs.ObjectiveRule{
		"f1": vocs.Minimize,
		"f2": vocs.Minimize,
	}
	return r
}

func TestPalette_OpenIncompatible(t *testing.T) {
	p := NewPalette()

	// A single-objective routine cannot host the Pareto front extension:
	// the error is surfaced and the extension is not attached.
	err := p.Open(NewParetoFront(), monoRoutine())
	require.Error(t, err)
	assert.Empty(t, p.Active())
}

func TestPalette_OpenCloseNotify(t *testing.T) {
	p := NewPalette()
	pareto := NewParetoFront()
	curve := NewCurveMonitor()
	r := multiRoutine()

	require.NoError(t, p.Open(pareto, r))
	require.NoError(t, p.Open(curve, r))
	assert.Equal(t, []string{"curve_monitor", "pareto_front"}, p.Active())

	// Double open is rejected.
	assert.Error(t, p.Open(pareto, r))

	data := frame.New()
	require.NoError(t, data.AppendRow(map[string]float64{"x0": 0, "f1": 1, "f2": 2}))
	require.NoError(t, data.AppendRow(map[string]float64{"x0": 1, "f1": 2, "f2": 1}))
	require.NoError(t, data.AppendRow(map[string]float64{"x0": 2, "f1": 3, "f2": 3}))
	require.NoError(t, p.Notify(r, data))

	assert.Len(t, pareto.Front(), 2)
	assert.Equal(t, []float64{1, 2, 3}, curve.Curve("f1"))

	p.Close("pareto_front")
	assert.Equal(t, []string{"curve_monitor"}, p.Active())
	p.Close("pareto_front") // idempotent
}

type failingExt struct{ err error }

func (f *failingExt) Name() string                 { return "failing" }
func (f *failingExt) Check(*routine.Routine) error { return nil }

func (f *failingExt) Update(*routine.Routine, *frame.Frame) error { return f.err }

func TestPalette_NotifySurfacesUpdateError(t *testing.T) {
	p := NewPalette()
	sentinel := errors.New("boom")
	require.NoError(t, p.Open(&failingExt{err: sentinel}, monoRoutine()))

	err := p.Notify(monoRoutine(), frame.New())
	assert.ErrorIs(t, err, sentinel)
}

func TestParetoFront_NonDominatedSet(t *testing.T) {
	r := multiRoutine()
	pareto := NewParetoFront()

	data := frame.New()
	// (1,4) and (4,1) trade off; (2,2) dominates (3,3).
	for _, pt := range [][2]float64{{1, 4}, {4, 1}, {2, 2}, {3, 3}} {
		require.NoError(t, data.AppendRow(map[string]float64{"x0": 0, "f1": pt[0], "f2": pt[1]}))
	}
	require.NoError(t, pareto.Update(r, data))

	front := pareto.Front()
	require.Len(t, front, 3)
	for _, point := range front {
		assert.NotEqual(t, [2]float64{3, 3}, [2]float64{point["f1"], point["f2"]})
	}
}

func TestParetoFront_MaximizeDirection(t *testing.T) {
	r := multiRoutine()
	r.VOCS.Objectives["f1"] = vocs.Maximize
	pareto := NewParetoFront()

	data := frame.New()
	// With f1 maximized, (1,1) is dominated by (2,1).
	require.NoError(t, data.AppendRow(map[string]float64{"x0": 0, "f1": 1, "f2": 1}))
	require.NoError(t, data.AppendRow(map[string]float64{"x0": 1, "f1": 2, "f2": 1}))
	require.NoError(t, pareto.Update(r, data))

	front := pareto.Front()
	require.Len(t, front, 1)
	assert.Equal(t, 2.0, front[0]["f1"])
}

func TestCurveMonitor_Check(t *testing.T) {
	c := NewCurveMonitor()
	assert.NoError(t, c.Check(monoRoutine()))

	empty := monoRoutine()
	empty.VOCS.Objectives = nil
	assert.Error(t, c.Check(empty))
}
