package vocs

import (
	"errors"
	"fmt"
)

// ErrMultiObjective is returned by SelectBest for problems with more than one
// objective, where a single best point is not defined.
var ErrMultiObjective = errors.New("best point selection is not defined for multi-objective problems")

// ErrNoFeasible is returned when no evaluated point satisfies all constraints.
var ErrNoFeasible = errors.New("no feasible points")

// SelectBest returns the index and objective value of the best feasible
// sample in the given column data. Columns are parallel arrays keyed by
// output name, the same shape as an archived run's data block.
func (v *VOCS) SelectBest(columns map[string][]float64) (int, float64, error) {
	objectives := v.ObjectiveNames()
	if len(objectives) != 1 {
		return -1, 0, ErrMultiObjective
	}
	obj := objectives[0]
	values, ok := columns[obj]
	if !ok {
		return -1, 0, fmt.Errorf("objective column %s missing from data", obj)
	}

	rule := v.Objectives[obj]
	bestIdx := -1
	var bestVal float64
	for i, val := range values {
		if !v.feasibleAt(columns, i) {
			continue
		}
		if bestIdx < 0 || better(rule, val, bestVal) {
			bestIdx = i
			bestVal = val
		}
	}
	if bestIdx < 0 {
		return -1, 0, ErrNoFeasible
	}
	return bestIdx, bestVal, nil
}

// feasibleAt checks every constraint column at row i. A missing constraint
// column counts as infeasible.
func (v *VOCS) feasibleAt(columns map[string][]float64, i int) bool {
	for name, c := range v.Constraints {
		col, ok := columns[name]
		if !ok || i >= len(col) || !c.Satisfied(col[i]) {
			return false
		}
	}
	return true
}

func better(rule ObjectiveRule, candidate, incumbent float64) bool {
	if rule == Maximize {
		return candidate > incumbent
	}
	return candidate < incumbent
}
