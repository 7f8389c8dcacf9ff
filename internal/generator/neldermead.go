package generator

import (
	"fmt"
	"sort"

	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
)

// Nelder-Mead coefficients (standard values).
const (
	nmReflect  = 1.0
	nmExpand   = 2.0
	nmContract = 0.5
	nmShrink   = 0.5
)

type nmPhase int

const (
	nmPhaseInit nmPhase = iota
	nmPhaseReflect
	nmPhaseExpand
	nmPhaseContractOut
	nmPhaseContractIn
	nmPhaseShrink
)

type nmVertex struct {
	x []float64
	f float64
}

// NelderMead is a sequential downhill-simplex generator for single-objective
// problems. It proposes exactly one candidate per Generate call and consumes
// evaluations in proposal order through AddData.
type NelderMead struct {
	vocs *vocs.VOCS

	names     []string
	objective string
	sign      float64
	step      float64 // initial simplex step as a fraction of each range

	simplex []nmVertex
	phase   nmPhase

	start   []float64 // first vertex, from seeding data or the bounds center
	pending []float64
	xr      []float64
	fr      float64
	xc      []float64

	shrinkIdx int
	active    bool
}

// NewNelderMead builds a simplex generator. Supported params:
// initial_step (fraction of each variable range used to span the first
// simplex, default 0.1) and seed-free deterministic behavior.
func NewNelderMead(v *vocs.VOCS, params map[string]any) (*NelderMead, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	objective, sign, err := singleObjective(v)
	if err != nil {
		return nil, fmt.Errorf("neldermead: %w", err)
	}
	step, err := param(params, "initial_step", 0.1)
	if err != nil {
		return nil, err
	}
	if step <= 0 || step >= 1 {
		return nil, fmt.Errorf("neldermead: initial_step must be in (0, 1), got %g", step)
	}
	return &NelderMead{
		vocs:      v,
		names:     v.VariableNames(),
		objective: objective,
		sign:      sign,
		step:      step,
		phase:     nmPhaseInit,
	}, nil
}

func (g *NelderMead) Name() string { return "neldermead" }

// Active reports whether the simplex search has started proposing points.
func (g *NelderMead) Active() bool { return g.active }

// Reset discards the simplex and starts over, keeping any seed point.
func (g *NelderMead) Reset() {
	g.simplex = nil
	g.phase = nmPhaseInit
	g.pending = nil
	g.xr = nil
	g.xc = nil
	g.shrinkIdx = 0
	g.active = false
}

// Generate proposes the next candidate. Nelder-Mead is strictly sequential,
// so n larger than 1 is rejected.
func (g *NelderMead) Generate(n int) ([]map[string]float64, error) {
	if n > 1 {
		return nil, fmt.Errorf("neldermead is sequential, cannot generate %d points at once", n)
	}
	if g.pending == nil {
		g.propose()
	}
	g.active = true
	return []map[string]float64{g.toPoint(g.pending)}, nil
}

// AddData consumes evaluated rows. While a proposal is outstanding the next
// row resolves it; rows arriving before the search starts seed the first
// vertex with the best point seen so far.
func (g *NelderMead) AddData(f *frame.Frame) error {
	if f == nil {
		return nil
	}
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		val, ok := row[g.objective]
		if !ok {
			return fmt.Errorf("neldermead: data is missing objective column %s", g.objective)
		}
		g.deliver(row, g.sign*val)
	}
	return nil
}

func (g *NelderMead) deliver(row map[string]float64, value float64) {
	if g.pending == nil {
		// Seeding data: remember the best point as the start vertex.
		x, ok := g.fromPoint(row)
		if !ok {
			return
		}
		if g.start == nil || len(g.simplex) == 0 {
			g.start = x
		}
		return
	}

	x := g.pending
	g.pending = nil

	switch g.phase {
	case nmPhaseInit:
		g.simplex = append(g.simplex, nmVertex{x: x, f: value})
		if len(g.simplex) == len(g.names)+1 {
			g.phase = nmPhaseReflect
		}

	case nmPhaseReflect:
		g.xr = x
		g.fr = value
		g.order()
		worst := len(g.simplex) - 1
		switch {
		case value < g.simplex[0].f:
			g.phase = nmPhaseExpand
		case value < g.simplex[worst-1].f:
			g.simplex[worst] = nmVertex{x: x, f: value}
		case value < g.simplex[worst].f:
			g.phase = nmPhaseContractOut
		default:
			g.phase = nmPhaseContractIn
		}

	case nmPhaseExpand:
		worst := len(g.simplex) - 1
		if value < g.fr {
			g.simplex[worst] = nmVertex{x: x, f: value}
		} else {
			g.simplex[worst] = nmVertex{x: g.xr, f: g.fr}
		}
		g.phase = nmPhaseReflect

	case nmPhaseContractOut:
		worst := len(g.simplex) - 1
		if value <= g.fr {
			g.simplex[worst] = nmVertex{x: x, f: value}
			g.phase = nmPhaseReflect
		} else {
			g.beginShrink()
		}

	case nmPhaseContractIn:
		worst := len(g.simplex) - 1
		if value < g.simplex[worst].f {
			g.simplex[worst] = nmVertex{x: x, f: value}
			g.phase = nmPhaseReflect
		} else {
			g.beginShrink()
		}

	case nmPhaseShrink:
		g.simplex[g.shrinkIdx] = nmVertex{x: x, f: value}
		g.shrinkIdx++
		if g.shrinkIdx == len(g.simplex) {
			g.phase = nmPhaseReflect
		}
	}
}

// propose computes the next pending point for the current phase.
func (g *NelderMead) propose() {
	switch g.phase {
	case nmPhaseInit:
		if len(g.simplex) == 0 {
			if g.start == nil {
				g.start = g.boundsCenter()
			}
			g.pending = append([]float64(nil), g.start...)
			return
		}
		// Span dimension i with a step proportional to its range.
		i := len(g.simplex) - 1
		x := append([]float64(nil), g.simplex[0].x...)
		b := g.vocs.Variables[g.names[i]]
		x[i] = b.Clip(x[i] + g.step*(b[1]-b[0]))
		if x[i] == g.simplex[0].x[i] {
			// Step clipped away entirely; move inward instead.
			x[i] = b.Clip(x[i] - g.step*(b[1]-b[0]))
		}
		g.pending = x

	case nmPhaseReflect:
		g.order()
		c := g.centroid()
		worst := g.simplex[len(g.simplex)-1].x
		g.pending = g.clip(combine(c, worst, nmReflect))

	case nmPhaseExpand:
		c := g.centroid()
		g.pending = g.clip(interpolate(c, g.xr, nmExpand))

	case nmPhaseContractOut:
		c := g.centroid()
		g.pending = g.clip(interpolate(c, g.xr, nmContract))

	case nmPhaseContractIn:
		c := g.centroid()
		worst := g.simplex[len(g.simplex)-1].x
		g.pending = g.clip(interpolate(c, worst, nmContract))

	case nmPhaseShrink:
		best := g.simplex[0].x
		target := g.simplex[g.shrinkIdx].x
		g.pending = g.clip(interpolate(best, target, nmShrink))
	}
}

func (g *NelderMead) beginShrink() {
	g.order()
	g.phase = nmPhaseShrink
	g.shrinkIdx = 1
}

func (g *NelderMead) order() {
	sort.SliceStable(g.simplex, func(a, b int) bool { return g.simplex[a].f < g.simplex[b].f })
}

// centroid of all vertices except the worst.
func (g *NelderMead) centroid() []float64 {
	n := len(g.simplex) - 1
	c := make([]float64, len(g.names))
	for i := 0; i < n; i++ {
		for j, v := range g.simplex[i].x {
			c[j] += v
		}
	}
	for j := range c {
		c[j] /= float64(n)
	}
	return c
}

func (g *NelderMead) boundsCenter() []float64 {
	x := make([]float64, len(g.names))
	for i, name := range g.names {
		b := g.vocs.Variables[name]
		x[i] = 0.5 * (b[0] + b[1])
	}
	return x
}

func (g *NelderMead) clip(x []float64) []float64 {
	for i, name := range g.names {
		x[i] = g.vocs.Variables[name].Clip(x[i])
	}
	return x
}

func (g *NelderMead) toPoint(x []float64) map[string]float64 {
	point := make(map[string]float64, len(g.names))
	for i, name := range g.names {
		point[name] = x[i]
	}
	return point
}

func (g *NelderMead) fromPoint(row map[string]float64) ([]float64, bool) {
	x := make([]float64, len(g.names))
	for i, name := range g.names {
		v, ok := row[name]
		if !ok {
			return nil, false
		}
		x[i] = v
	}
	return x, true
}

// combine returns c + coeff*(c - other).
func combine(c, other []float64, coeff float64) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i] + coeff*(c[i]-other[i])
	}
	return out
}

// interpolate returns from + coeff*(to - from).
func interpolate(from, to []float64, coeff float64) []float64 {
	out := make([]float64, len(from))
	for i := range from {
		out[i] = from[i] + coeff*(to[i]-from[i])
	}
	return out
}
