// Package runner drives an optimization loop: evaluate the initial points,
// then repeatedly ask the generator for a candidate, evaluate it on the
// environment and feed the result back. The loop runs in the caller's
// goroutine and reports progress on an event channel.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/badger-opt/badger/internal/archive"
	"github.com/badger-opt/badger/internal/db"
	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
)

// ErrRunTerminated signals that the run was stopped by the user or by context
// cancellation rather than finishing on its own.
var ErrRunTerminated = errors.New("run terminated")

// EventType classifies runner events.
type EventType string

const (
	EventStart         EventType = "start"
	EventStep          EventType = "step"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventCriticalPause EventType = "critical_pause"
	EventEnd           EventType = "end"
	EventError         EventType = "error"
)

// Solution is the outcome of one evaluation step.
type Solution struct {
	Index       int
	Variables   map[string]float64
	Objectives  map[string]float64
	Constraints map[string]float64
	Observables map[string]float64
	// IsOptimal marks the step that is the best feasible sample so far.
	IsOptimal bool
}

// Event is one progress report from the run loop.
type Event struct {
	Type     EventType
	Solution *Solution
	// Reason names the critical constraint that triggered a pause.
	Reason string
	Err    error
}

// Options tune a single run.
type Options struct {
	// MaxEvaluations ends the run after this many evaluated points (0 = no
	// limit).
	MaxEvaluations int
	// MaxTime ends the run after this wall-clock duration (0 = no limit).
	MaxTime time.Duration
	// SkipInitialPoints starts straight from the generator.
	SkipInitialPoints bool
	// Archive, when set, receives tmp checkpoints during the run and the
	// final run file at the end.
	Archive *archive.Archive
	// DumpPeriod is the minimum interval between tmp checkpoints.
	DumpPeriod time.Duration
	// Store, when set, records the finished run.
	Store  *db.Store
	Logger *slog.Logger
}

// Runner executes one materialized routine.
type Runner struct {
	bound *routine.Bound
	opts  Options
	log   *slog.Logger

	events chan Event

	mu     sync.Mutex
	resume chan struct{} // non-nil while paused
	stop   chan struct{}
	once   sync.Once

	data *frame.Frame
	now  func() time.Time
}

// New prepares a runner for a materialized routine.
func New(bound *routine.Bound, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		bound:  bound,
		opts:   opts,
		log:    logger,
		events: make(chan Event, 128),
		stop:   make(chan struct{}),
		data:   frame.New(),
		now:    time.Now,
	}
}

// Events returns the progress channel. It is closed when Run returns.
func (r *Runner) Events() <-chan Event { return r.events }

// Data returns the evaluated samples collected so far.
func (r *Runner) Data() *frame.Frame { return r.data }

// Pause gates the loop before its next evaluation.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume == nil {
		r.resume = make(chan struct{})
		r.emit(Event{Type: EventPaused})
	}
}

// Resume releases a paused loop.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume != nil {
		close(r.resume)
		r.resume = nil
		r.emit(Event{Type: EventResumed})
	}
}

// Stop ends the run. The loop returns ErrRunTerminated.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
}

// Run executes the loop until a termination condition fires, the run is
// stopped, or an evaluation fails. The event channel is closed on return.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.events)

	start := r.now()
	lastDump := start
	r.emit(Event{Type: EventStart})
	r.log.Debug("optimization started", "routine", r.bound.Routine.Name)

	err := r.runLoop(ctx, start, &lastDump)

	if err != nil && !errors.Is(err, ErrRunTerminated) {
		r.emit(Event{Type: EventError, Err: err})
	}
	r.emit(Event{Type: EventEnd})

	if finalErr := r.finalize(); finalErr != nil && err == nil {
		err = finalErr
	}
	r.log.Debug("optimization ended", "routine", r.bound.Routine.Name, "evaluations", r.data.Len())
	return err
}

func (r *Runner) runLoop(ctx context.Context, start time.Time, lastDump *time.Time) error {
	if !r.opts.SkipInitialPoints && r.bound.Routine.InitialPoints != nil {
		points := r.bound.Routine.InitialPoints
		for i := 0; i < points.Len(); i++ {
			if err := r.await(ctx); err != nil {
				return err
			}
			if err := r.step(ctx, r.variablesOnly(points.Row(i))); err != nil {
				return err
			}
		}
	}

	for {
		if err := r.await(ctx); err != nil {
			return err
		}
		if r.terminated(start) {
			return nil
		}

		candidates, err := r.bound.Generator.Generate(1)
		if err != nil {
			return fmt.Errorf("failed to generate candidate: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		if err := r.await(ctx); err != nil {
			return err
		}
		if err := r.step(ctx, candidates[0]); err != nil {
			return err
		}
		r.checkpoint(lastDump)
	}
}

// step evaluates one point, records it and feeds it back to the generator.
func (r *Runner) step(ctx context.Context, point map[string]float64) error {
	outputs, err := r.bound.Evaluate(ctx, point)
	if err != nil {
		return fmt.Errorf("failed to evaluate point: %w", err)
	}

	row := make(map[string]float64, len(point)+len(outputs))
	for k, v := range point {
		row[k] = v
	}
	for k, v := range outputs {
		row[k] = v
	}
	if err := r.data.AppendRow(row); err != nil {
		return err
	}

	sample := frame.New()
	if err := sample.AppendRow(row); err != nil {
		return err
	}
	if err := r.bound.Generator.AddData(sample); err != nil {
		return fmt.Errorf("failed to add data to generator: %w", err)
	}

	r.emit(Event{Type: EventStep, Solution: r.solution(row)})
	r.checkCritical(outputs)
	return nil
}

// checkCritical pauses the run when a critical constraint is violated. The
// loop stays gated until the operator resumes or stops it.
func (r *Runner) checkCritical(outputs map[string]float64) {
	v := r.bound.Routine.VOCS
	for _, name := range r.bound.Routine.CriticalConstraintNames {
		c, ok := v.Constraints[name]
		if !ok {
			continue
		}
		if val, present := outputs[name]; present && !c.Satisfied(val) {
			r.log.Debug("critical constraint violated", "constraint", name, "value", val)
			r.Pause()
			r.emit(Event{Type: EventCriticalPause, Reason: name})
			return
		}
	}
}

func (r *Runner) terminated(start time.Time) bool {
	if r.opts.MaxEvaluations > 0 && r.data.Len() >= r.opts.MaxEvaluations {
		return true
	}
	if r.opts.MaxTime > 0 && r.now().Sub(start) >= r.opts.MaxTime {
		return true
	}
	return false
}

// await blocks while paused and reports termination triggers.
func (r *Runner) await(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ErrRunTerminated
		case <-r.stop:
			return ErrRunTerminated
		default:
		}

		r.mu.Lock()
		resume := r.resume
		r.mu.Unlock()
		if resume == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrRunTerminated
		case <-r.stop:
			return ErrRunTerminated
		case <-resume:
		}
	}
}

// checkpoint writes a tmp archive dump when the dump period has elapsed.
func (r *Runner) checkpoint(lastDump *time.Time) {
	if r.opts.Archive == nil {
		return
	}
	if r.now().Sub(*lastDump) < r.opts.DumpPeriod {
		return
	}
	if _, err := r.opts.Archive.SaveTmp(r.bound.Routine, r.data); err != nil {
		r.log.Debug("failed to checkpoint run", "error", err)
		return
	}
	*lastDump = r.now()
}

// finalize archives the finished run and records it in the store.
func (r *Runner) finalize() error {
	if r.opts.Archive == nil || r.data.Len() == 0 {
		return nil
	}
	states, err := r.bound.Environment.SystemStates(context.Background())
	if err != nil {
		states = nil
	}
	run, err := r.opts.Archive.Save(r.bound.Routine, r.data, states)
	if err != nil {
		return err
	}
	if r.opts.Store != nil {
		if _, err := r.opts.Store.SaveRun(r.bound.Routine.ID, run.Filename, r.data); err != nil {
			return err
		}
	}
	return nil
}

// solution converts an evaluated row into the per-step report.
func (r *Runner) solution(row map[string]float64) *Solution {
	v := r.bound.Routine.VOCS
	s := &Solution{
		Index:       r.data.Len() - 1,
		Variables:   pick(row, v.VariableNames()),
		Objectives:  pick(row, v.ObjectiveNames()),
		Constraints: pick(row, v.ConstraintNames()),
		Observables: pick(row, v.ObservableNames()),
	}
	if bestIdx, _, err := v.SelectBest(r.data.ToColumns()); err == nil {
		s.IsOptimal = bestIdx == s.Index
	}
	return s
}

func (r *Runner) variablesOnly(row map[string]float64) map[string]float64 {
	return pick(row, r.bound.Routine.VOCS.VariableNames())
}

func (r *Runner) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// A stalled consumer must not wedge the loop; drop the event.
		r.log.Debug("dropped runner event", "type", ev.Type)
	}
}

func pick(row map[string]float64, names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		if val, ok := row[name]; ok {
			out[name] = val
		}
	}
	return out
}
