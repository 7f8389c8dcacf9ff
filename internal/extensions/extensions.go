// Package extensions hosts pluggable run observers. An extension declares
// which routines it is compatible with and receives the evaluated data after
// every update. The palette tracks which extensions are attached to a run.
package extensions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"golang.org/x/sync/errgroup"
)

// Extension observes an optimization run.
type Extension interface {
	Name() string
	// Check reports whether the extension can attach to the routine. A
	// non-nil error blocks the attach.
	Check(r *routine.Routine) error
	// Update feeds the current evaluated data to the extension.
	Update(r *routine.Routine, data *frame.Frame) error
}

// Palette manages the set of attached extensions for one run.
type Palette struct {
	mu     sync.Mutex
	active map[string]Extension
}

// NewPalette creates an empty palette.
func NewPalette() *Palette {
	return &Palette{active: make(map[string]Extension)}
}

// Open attaches an extension after a compatibility check. An incompatible
// extension is not attached and the check error is returned; a failed attach
// never leaves the extension in the active set.
func (p *Palette) Open(ext Extension, r *routine.Routine) error {
	if err := ext.Check(r); err != nil {
		return fmt.Errorf("extension %s is not compatible with routine %s: %w", ext.Name(), r.Name, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[ext.Name()]; ok {
		return fmt.Errorf("extension %s is already open", ext.Name())
	}
	p.active[ext.Name()] = ext
	return nil
}

// Close detaches an extension by name. Closing an extension that is not open
// is a no-op.
func (p *Palette) Close(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, name)
}

// Active returns the names of the attached extensions, sorted.
func (p *Palette) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.active))
	for name := range p.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Notify fans the current data out to every attached extension concurrently
// and returns the first update error.
func (p *Palette) Notify(r *routine.Routine, data *frame.Frame) error {
	p.mu.Lock()
	exts := make([]Extension, 0, len(p.active))
	for _, ext := range p.active {
		exts = append(exts, ext)
	}
	p.mu.Unlock()

	var g errgroup.Group
	for _, ext := range exts {
		g.Go(func() error {
			if err := ext.Update(r, data); err != nil {
				return fmt.Errorf("extension %s: %w", ext.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
