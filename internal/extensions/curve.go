package extensions

import (
	"fmt"
	"sync"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
)

// CurveMonitor tracks the objective history of a run, one series per
// objective. It is compatible with any routine that has objectives.
type CurveMonitor struct {
	mu     sync.Mutex
	curves map[string][]float64
}

// NewCurveMonitor creates the extension.
func NewCurveMonitor() *CurveMonitor {
	return &CurveMonitor{curves: make(map[string][]float64)}
}

func (c *CurveMonitor) Name() string { return "curve_monitor" }

// Check only requires the routine to have at least one objective.
func (c *CurveMonitor) Check(r *routine.Routine) error {
	if r.VOCS == nil || len(r.VOCS.Objectives) == 0 {
		return fmt.Errorf("curve monitor requires at least one objective")
	}
	return nil
}

// Update replaces the tracked series with the objective columns of the data.
func (c *CurveMonitor) Update(r *routine.Routine, data *frame.Frame) error {
	if data == nil {
		return nil
	}
	curves := make(map[string][]float64)
	for _, name := range r.VOCS.ObjectiveNames() {
		col := data.Column(name)
		if col == nil {
			return fmt.Errorf("run data has no column %s", name)
		}
		curves[name] = col
	}
	c.mu.Lock()
	c.curves = curves
	c.mu.Unlock()
	return nil
}

// Curve returns the tracked series for an objective.
func (c *CurveMonitor) Curve(name string) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.curves[name]...)
}
