// Package env defines the tunable-system abstraction: an Environment exposes
// variables that can be set within bounds and observables that can be read,
// usually by delegating to a machine Interface. The Checked wrapper enforces
// the contract the optimizer relies on (setpoints inside bounds, declared
// observables only, validated lazy bounds).
package env

import (
	"context"

	"github.com/badger-opt/badger/pkg/vocs"
)

// Environment is a tunable system, machine or simulation.
//
// Bounds may return an empty range for variables whose limits must be read
// from the machine; Checked resolves those lazily.
type Environment interface {
	Name() string
	VariableNames() []string
	ObservableNames() []string
	Bounds(names []string) (map[string]vocs.Bounds, error)
	GetVariables(ctx context.Context, names []string) (map[string]float64, error)
	SetVariables(ctx context.Context, inputs map[string]float64) error
	GetObservables(ctx context.Context, names []string) (map[string]float64, error)
}

// ChangeNotifier is implemented by environments that need a hook after
// variables change and before observables are read.
type ChangeNotifier interface {
	VariablesChanged(ctx context.Context, inputs map[string]float64) error
}

// StateProvider is implemented by environments that can report machine state
// snapshots to be stored alongside a run.
type StateProvider interface {
	SystemStates(ctx context.Context) (map[string]any, error)
}

// Base is an embeddable environment core that routes variable and observable
// access through an attached Interface.
type Base struct {
	Intf Interface
}

// Interface returns the attached interface, or nil.
func (b *Base) Interface() Interface { return b.Intf }

// GetVariables reads variables through the interface.
func (b *Base) GetVariables(ctx context.Context, names []string) (map[string]float64, error) {
	if b.Intf == nil {
		return nil, ErrNoInterface
	}
	return b.Intf.GetValues(ctx, names)
}

// SetVariables writes variables through the interface.
func (b *Base) SetVariables(ctx context.Context, inputs map[string]float64) error {
	if b.Intf == nil {
		return ErrNoInterface
	}
	return b.Intf.SetValues(ctx, inputs)
}

// GetObservables reads observables through the interface.
func (b *Base) GetObservables(ctx context.Context, names []string) (map[string]float64, error) {
	if b.Intf == nil {
		return nil, ErrNoInterface
	}
	return b.Intf.GetValues(ctx, names)
}
