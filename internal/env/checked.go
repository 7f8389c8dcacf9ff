package env

import (
	"context"
	"sync"

	"github.com/badger-opt/badger/pkg/vocs"
)

// Checked wraps an Environment with the guarantees the optimizer depends on.
// The run loop only ever talks to a Checked environment.
type Checked struct {
	Environment

	mu     sync.Mutex
	bounds map[string]vocs.Bounds
}

// NewChecked wraps an environment. Overrides replace the environment's own
// bounds for the named variables (routine hard-limit overrides).
func NewChecked(e Environment, overrides map[string]vocs.Bounds) *Checked {
	bounds := make(map[string]vocs.Bounds, len(overrides))
	for name, b := range overrides {
		bounds[name] = b
	}
	return &Checked{Environment: e, bounds: bounds}
}

// ResolveBounds returns validated bounds for the named variables, reading and
// caching any not yet known. Bounds are fetched one variable at a time since
// individual reads can fail.
func (c *Checked) ResolveBounds(names []string) (map[string]vocs.Bounds, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]vocs.Bounds, len(names))
	var unresolved []string
	for _, name := range names {
		if b, ok := c.bounds[name]; ok {
			out[name] = b
			continue
		}
		unresolved = append(unresolved, name)
	}

	for _, name := range unresolved {
		got, err := c.Environment.Bounds([]string{name})
		if err != nil {
			return nil, err
		}
		b, ok := got[name]
		if !ok {
			return nil, &BoundsError{Name: name}
		}
		if b[1] <= b[0] {
			return nil, &BoundsError{Name: name, Bounds: b}
		}
		c.bounds[name] = b
		out[name] = b
	}
	return out, nil
}

// SetVariables validates every setpoint against the resolved bounds before
// writing.
func (c *Checked) SetVariables(ctx context.Context, inputs map[string]float64) error {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	bounds, err := c.ResolveBounds(names)
	if err != nil {
		return err
	}
	for name, value := range inputs {
		b := bounds[name]
		if !b.Contains(value) {
			return &VariableError{Name: name, Value: value, Bounds: b}
		}
	}
	if err := c.Environment.SetVariables(ctx, inputs); err != nil {
		return err
	}
	if notifier, ok := c.Environment.(ChangeNotifier); ok {
		return notifier.VariablesChanged(ctx, inputs)
	}
	return nil
}

// GetObservables rejects names the environment does not declare.
func (c *Checked) GetObservables(ctx context.Context, names []string) (map[string]float64, error) {
	declared := make(map[string]struct{})
	for _, name := range c.Environment.ObservableNames() {
		declared[name] = struct{}{}
	}
	var invalid []string
	for _, name := range names {
		if _, ok := declared[name]; !ok {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return nil, &ObservableError{Names: invalid}
	}
	return c.Environment.GetObservables(ctx, names)
}

// SystemStates returns the machine state snapshot when the wrapped
// environment provides one.
func (c *Checked) SystemStates(ctx context.Context) (map[string]any, error) {
	if provider, ok := c.Environment.(StateProvider); ok {
		return provider.SystemStates(ctx)
	}
	return nil, nil
}
