// Package generator provides the native optimization generators. A generator
// proposes candidate points for evaluation and absorbs evaluated samples
// through AddData. Richer algorithms can be plugged in through the factory
// registry.
package generator

import (
	"errors"
	"fmt"

	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
)

// Generator proposes candidate points.
type Generator interface {
	Name() string
	// Generate returns up to n candidate points.
	Generate(n int) ([]map[string]float64, error)
	// AddData feeds evaluated samples back to the generator.
	AddData(f *frame.Frame) error
}

// Sequential marks generators that consume evaluations strictly in the order
// they proposed them, one candidate at a time.
type Sequential interface {
	Generator
	Reset()
	Active() bool
}

// ErrExhausted is returned when a generator cannot propose further points.
var ErrExhausted = errors.New("generator has no more candidates")

// param reads a float parameter with a default.
func param(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %s must be a number, got %T", key, raw)
	}
}

// seedParam reads the optional integer random seed.
func seedParam(params map[string]any) (int64, bool, error) {
	raw, ok := params["seed"]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case float64:
		return int64(v), true, nil
	default:
		return 0, false, fmt.Errorf("parameter seed must be an integer, got %T", raw)
	}
}

// singleObjective returns the sole objective name and its sign for internal
// minimization (+1 minimize, -1 maximize).
func singleObjective(v *vocs.VOCS) (string, float64, error) {
	names := v.ObjectiveNames()
	if len(names) != 1 {
		return "", 0, fmt.Errorf("generator requires exactly one objective, got %d", len(names))
	}
	name := names[0]
	if v.Objectives[name] == vocs.Maximize {
		return name, -1, nil
	}
	return name, 1, nil
}
