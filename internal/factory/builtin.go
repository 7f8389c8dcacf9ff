package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/badger-opt/badger/internal/env"
	"github.com/badger-opt/badger/internal/generator"
	"github.com/badger-opt/badger/pkg/vocs"
)

func init() {
	r := Default()
	must(r.RegisterInterface("mock", InterfacePlugin{
		New: newMockInterface,
	}))
	must(r.RegisterEnvironment("sphere_2d", EnvironmentPlugin{
		New:              newSphereEnv,
		DefaultInterface: "mock",
	}))
	must(r.RegisterGenerator("random", GeneratorPlugin{
		New: func(v *vocs.VOCS, params map[string]any) (generator.Generator, error) {
			return generator.NewRandom(v, params)
		},
	}))
	must(r.RegisterGenerator("latin_hypercube", GeneratorPlugin{
		New: func(v *vocs.VOCS, params map[string]any) (generator.Generator, error) {
			return generator.NewLatinHypercube(v, params)
		},
	}))
	must(r.RegisterGenerator("neldermead", GeneratorPlugin{
		New: func(v *vocs.VOCS, params map[string]any) (generator.Generator, error) {
			return generator.NewNelderMead(v, params)
		},
		Params: map[string]any{"initial_step": 0.1},
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// mockInterface stores channel values in memory. Unset channels read as zero.
type mockInterface struct {
	mu     sync.Mutex
	values map[string]float64
}

func newMockInterface(map[string]any) (env.Interface, error) {
	return &mockInterface{values: make(map[string]float64)}, nil
}

func (m *mockInterface) Name() string { return "mock" }

func (m *mockInterface) GetValues(_ context.Context, channels []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(channels))
	for _, ch := range channels {
		out[ch] = m.values[ch]
	}
	return out, nil
}

func (m *mockInterface) SetValues(_ context.Context, inputs map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch, v := range inputs {
		m.values[ch] = v
	}
	return nil
}

// sphereEnv is the built-in analytic test environment. Two variables on
// [-1, 1] and two quadratic observables:
//
//	f1 = x0^2 + x1^2
//	f2 = (x0 - 0.5)^2 + x1^2
type sphereEnv struct {
	env.Base
}

func newSphereEnv(intf env.Interface, _ map[string]any) (env.Environment, error) {
	if intf == nil {
		return nil, env.ErrNoInterface
	}
	return &sphereEnv{Base: env.Base{Intf: intf}}, nil
}

func (e *sphereEnv) Name() string { return "sphere_2d" }

func (e *sphereEnv) VariableNames() []string { return []string{"x0", "x1"} }

func (e *sphereEnv) ObservableNames() []string { return []string{"f1", "f2"} }

func (e *sphereEnv) Bounds(names []string) (map[string]vocs.Bounds, error) {
	out := make(map[string]vocs.Bounds, len(names))
	for _, name := range names {
		switch name {
		case "x0", "x1":
			out[name] = vocs.Bounds{-1, 1}
		default:
			return nil, fmt.Errorf("sphere_2d has no variable %s", name)
		}
	}
	return out, nil
}

func (e *sphereEnv) GetObservables(ctx context.Context, names []string) (map[string]float64, error) {
	inputs, err := e.GetVariables(ctx, e.VariableNames())
	if err != nil {
		return nil, err
	}
	x0, x1 := inputs["x0"], inputs["x1"]
	out := make(map[string]float64, len(names))
	for _, name := range names {
		switch name {
		case "f1":
			out[name] = x0*x0 + x1*x1
		case "f2":
			out[name] = (x0-0.5)*(x0-0.5) + x1*x1
		default:
			return nil, fmt.Errorf("sphere_2d has no observable %s", name)
		}
	}
	return out, nil
}
