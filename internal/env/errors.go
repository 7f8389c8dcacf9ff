package env

import (
	"errors"
	"fmt"
)

// ErrNoInterface is returned when an environment needs a machine interface
// but none was attached.
var ErrNoInterface = errors.New("environment has no interface attached")

// VariableError reports a setpoint outside its bounds or an invalid bound.
type VariableError struct {
	Name   string
	Value  float64
	Bounds [2]float64
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("input point for %s is outside its bounds [%g, %g]: %g",
		e.Name, e.Bounds[0], e.Bounds[1], e.Value)
}

// ObservableError reports observable names not declared by the environment.
type ObservableError struct {
	Names []string
}

func (e *ObservableError) Error() string {
	return fmt.Sprintf("observables %v not found in environment", e.Names)
}

// BoundsError reports an unusable bound returned by an environment.
type BoundsError struct {
	Name   string
	Bounds [2]float64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("invalid bound for %s: [%g, %g]", e.Name, e.Bounds[0], e.Bounds[1])
}
