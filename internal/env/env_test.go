package env

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIntf is an in-memory channel map.
type memIntf struct {
	mu     sync.Mutex
	values map[string]float64
}

func newMemIntf() *memIntf {
	return &memIntf{values: make(map[string]float64)}
}

func (m *memIntf) Name() string { return "mem" }

func (m *memIntf) GetValues(_ context.Context, channels []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(channels))
	for _, ch := range channels {
		out[ch] = m.values[ch]
	}
	return out, nil
}

func (m *memIntf) SetValues(_ context.Context, inputs map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch, v := range inputs {
		m.values[ch] = v
	}
	return nil
}

// stubEnv declares two variables and one observable, reading everything from
// an interface via Base.
type stubEnv struct {
	Base
	bounds map[string]vocs.Bounds
}

func newStubEnv(intf Interface) *stubEnv {
	return &stubEnv{
		Base: Base{Intf: intf},
		bounds: map[string]vocs.Bounds{
			"x0": {-1, 1},
			"x1": {}, // resolved lazily
		},
	}
}

func (e *stubEnv) Name() string              { return "stub" }
func (e *stubEnv) VariableNames() []string   { return []string{"x0", "x1"} }
func (e *stubEnv) ObservableNames() []string { return []string{"f"} }

func (e *stubEnv) Bounds(names []string) (map[string]vocs.Bounds, error) {
	out := make(map[string]vocs.Bounds, len(names))
	for _, name := range names {
		b := e.bounds[name]
		if b == (vocs.Bounds{}) {
			b = vocs.Bounds{-2, 2} // pretend this came from the machine
		}
		out[name] = b
	}
	return out, nil
}

func TestBase_RequiresInterface(t *testing.T) {
	e := &stubEnv{}
	ctx := context.Background()

	_, err := e.GetVariables(ctx, []string{"x0"})
	assert.ErrorIs(t, err, ErrNoInterface)

	err = e.SetVariables(ctx, map[string]float64{"x0": 0})
	assert.ErrorIs(t, err, ErrNoInterface)

	_, err = e.GetObservables(ctx, []string{"f"})
	assert.ErrorIs(t, err, ErrNoInterface)
}

func TestChecked_SetVariablesBounds(t *testing.T) {
	e := newStubEnv(newMemIntf())
	checked := NewChecked(e, nil)
	ctx := context.Background()

	require.NoError(t, checked.SetVariables(ctx, map[string]float64{"x0": 0.5}))

	err := checked.SetVariables(ctx, map[string]float64{"x0": 1.5})
	var verr *VariableError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "x0", verr.Name)

	// Lazy bound resolution kicks in for x1.
	require.NoError(t, checked.SetVariables(ctx, map[string]float64{"x1": -1.5}))
	err = checked.SetVariables(ctx, map[string]float64{"x1": 2.5})
	assert.ErrorAs(t, err, &verr)
}

func TestChecked_BoundOverrides(t *testing.T) {
	e := newStubEnv(newMemIntf())
	checked := NewChecked(e, map[string]vocs.Bounds{"x0": {0, 0.1}})
	ctx := context.Background()

	// 0.5 is inside the environment bounds but outside the override.
	err := checked.SetVariables(ctx, map[string]float64{"x0": 0.5})
	var verr *VariableError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, checked.SetVariables(ctx, map[string]float64{"x0": 0.05}))
}

func TestChecked_GetObservablesValidatesNames(t *testing.T) {
	e := newStubEnv(newMemIntf())
	checked := NewChecked(e, nil)
	ctx := context.Background()

	_, err := checked.GetObservables(ctx, []string{"f", "nope"})
	var oerr *ObservableError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, []string{"nope"}, oerr.Names)

	_, err = checked.GetObservables(ctx, []string{"f"})
	assert.NoError(t, err)
}

type badBoundsEnv struct {
	stubEnv
}

func (e *badBoundsEnv) Bounds([]string) (map[string]vocs.Bounds, error) {
	return map[string]vocs.Bounds{"x1": {1, -1}}, nil
}

func TestChecked_InvalidLazyBounds(t *testing.T) {
	e := &badBoundsEnv{stubEnv: *newStubEnv(newMemIntf())}
	checked := NewChecked(e, nil)

	_, err := checked.ResolveBounds([]string{"x1"})
	var berr *BoundsError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "x1", berr.Name)
}

func TestRecorder(t *testing.T) {
	intf := newMemIntf()
	rec := NewRecorder(intf)
	ctx := context.Background()

	// Nothing recorded before StartRecording.
	require.NoError(t, rec.SetValues(ctx, map[string]float64{"x": 1}))
	assert.Empty(t, rec.Entries())

	rec.StartRecording()
	require.NoError(t, rec.SetValues(ctx, map[string]float64{"x": 2}))
	_, err := rec.GetValues(ctx, []string{"x"})
	require.NoError(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "set_values", entries[0].Action)
	assert.Equal(t, map[string]float64{"x": 2}, entries[0].Inputs)
	assert.Equal(t, "get_values", entries[1].Action)
	assert.Equal(t, map[string]float64{"x": 2}, entries[1].Outputs)

	path := filepath.Join(t.TempDir(), "recording.json")
	require.NoError(t, rec.StopRecording(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []RecordEntry
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2)

	// Log cleared after stop; empty log writes no file.
	assert.Empty(t, rec.Entries())
	path2 := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, rec.StopRecording(path2))
	_, err = os.Stat(path2)
	assert.True(t, os.IsNotExist(err))
}
