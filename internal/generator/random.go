package generator

import (
	"math/rand"
	"time"

	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
)

// Random samples uniformly inside the variable bounds. It ignores evaluated
// data entirely.
type Random struct {
	vocs *vocs.VOCS
	rng  *rand.Rand
}

// NewRandom builds a random generator. Supported params: seed.
func NewRandom(v *vocs.VOCS, params map[string]any) (*Random, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	seed, ok, err := seedParam(params)
	if err != nil {
		return nil, err
	}
	if !ok {
		seed = time.Now().UnixNano()
	}
	return &Random{vocs: v, rng: rand.New(rand.NewSource(seed))}, nil
}

func (g *Random) Name() string { return "random" }

// Generate draws n uniform points.
func (g *Random) Generate(n int) ([]map[string]float64, error) {
	if n < 1 {
		n = 1
	}
	return g.vocs.RandomInputs(g.rng, n, nil), nil
}

// AddData is a no-op for random sampling.
func (g *Random) AddData(*frame.Frame) error { return nil }

// LatinHypercube samples with one point per stratum along every dimension.
type LatinHypercube struct {
	vocs *vocs.VOCS
	rng  *rand.Rand
}

// NewLatinHypercube builds a latin hypercube sampler. Supported params: seed.
func NewLatinHypercube(v *vocs.VOCS, params map[string]any) (*LatinHypercube, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	seed, ok, err := seedParam(params)
	if err != nil {
		return nil, err
	}
	if !ok {
		seed = time.Now().UnixNano()
	}
	return &LatinHypercube{vocs: v, rng: rand.New(rand.NewSource(seed))}, nil
}

func (g *LatinHypercube) Name() string { return "latin_hypercube" }

// Generate draws n points, each dimension stratified into n equal slices
// visited in a random permutation.
func (g *LatinHypercube) Generate(n int) ([]map[string]float64, error) {
	if n < 1 {
		n = 1
	}
	names := g.vocs.VariableNames()
	perms := make(map[string][]int, len(names))
	for _, name := range names {
		perms[name] = g.rng.Perm(n)
	}

	points := make([]map[string]float64, n)
	for i := range points {
		point := make(map[string]float64, len(names))
		for _, name := range names {
			b := g.vocs.Variables[name]
			stratum := float64(perms[name][i])
			u := (stratum + g.rng.Float64()) / float64(n)
			point[name] = b[0] + u*(b[1]-b[0])
		}
		points[i] = point
	}
	return points, nil
}

// AddData is a no-op for latin hypercube sampling.
func (g *LatinHypercube) AddData(*frame.Frame) error { return nil }
