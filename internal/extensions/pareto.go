package extensions

import (
	"fmt"
	"sync"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
)

// ParetoFront maintains the non-dominated set of evaluated points for
// multi-objective routines.
type ParetoFront struct {
	mu    sync.Mutex
	front []map[string]float64
}

// NewParetoFront creates the extension.
func NewParetoFront() *ParetoFront { return &ParetoFront{} }

func (p *ParetoFront) Name() string { return "pareto_front" }

// Check requires at least two objectives; a Pareto front of a
// single-objective problem is just its best point.
func (p *ParetoFront) Check(r *routine.Routine) error {
	if r.VOCS == nil || len(r.VOCS.Objectives) < 2 {
		return fmt.Errorf("pareto front requires at least 2 objectives, routine has %d", len(objectivesOf(r)))
	}
	return nil
}

// Update recomputes the non-dominated set from the full data.
func (p *ParetoFront) Update(r *routine.Routine, data *frame.Frame) error {
	if data == nil || data.Len() == 0 {
		return nil
	}
	names := r.VOCS.ObjectiveNames()
	rules := r.VOCS.Objectives

	var front []map[string]float64
	for i := 0; i < data.Len(); i++ {
		candidate := data.Row(i)
		dominated := false
		for j := 0; j < data.Len(); j++ {
			if i == j {
				continue
			}
			if dominates(data.Row(j), candidate, names, rules) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, candidate)
		}
	}

	p.mu.Lock()
	p.front = front
	p.mu.Unlock()
	return nil
}

// Front returns the current non-dominated points.
func (p *ParetoFront) Front() []map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]float64(nil), p.front...)
}

// dominates reports whether a is at least as good as b in every objective and
// strictly better in at least one.
func dominates(a, b map[string]float64, names []string, rules map[string]vocs.ObjectiveRule) bool {
	strictly := false
	for _, name := range names {
		av, bv := a[name], b[name]
		if rules[name] == vocs.Maximize {
			av, bv = -av, -bv
		}
		if av > bv {
			return false
		}
		if av < bv {
			strictly = true
		}
	}
	return strictly
}

func objectivesOf(r *routine.Routine) map[string]vocs.ObjectiveRule {
	if r.VOCS == nil {
		return nil
	}
	return r.VOCS.Objectives
}
