package runner

import (
	"context"
	"testing"
	"time"

	"github.com/badger-opt/badger/internal/archive"
	"github.com/badger-opt/badger/internal/db"
	"github.com/badger-opt/badger/internal/factory"
	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/internal/testutil"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materialized(t *testing.T, mutate func(*routine.Routine)) *routine.Bound {
	t.Helper()
	r := &routine.Routine{
		Name:        "sphere-run",
		Environment: routine.EnvironmentSpec{Name: "sphere_2d"},
		Generator:   routine.GeneratorSpec{Name: "random", Params: map[string]any{"seed": 11}},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
		},
	}
	if mutate != nil {
		mutate(r)
	}
	bound, err := routine.Materialize(factory.Default(), r)
	require.NoError(t, err)
	return bound
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestRun_MaxEvaluations(t *testing.T) {
	r := New(materialized(t, nil), Options{MaxEvaluations: 5})

	err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, r.Data().Len())
	events := collect(r.Events())
	types := eventTypes(events)
	assert.Equal(t, EventStart, types[0])
	assert.Equal(t, EventEnd, types[len(types)-1])

	var steps int
	var optimal int
	for _, ev := range events {
		if ev.Type != EventStep {
			continue
		}
		steps++
		require.NotNil(t, ev.Solution)
		assert.Contains(t, ev.Solution.Variables, "x0")
		assert.Contains(t, ev.Solution.Objectives, "f1")
		if ev.Solution.IsOptimal {
			optimal++
		}
	}
	assert.Equal(t, 5, steps)
	// The first step is always the best so far; at least one step is marked.
	assert.GreaterOrEqual(t, optimal, 1)
}

func TestRun_MaxTime(t *testing.T) {
	r := New(materialized(t, nil), Options{MaxTime: time.Nanosecond})

	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Data().Len())
}

func TestRun_InitialPointsEvaluatedFirst(t *testing.T) {
	r := New(materialized(t, func(r *routine.Routine) {
		points := frame.New()
		_ = points.AppendRow(map[string]float64{"x0": 0.25, "x1": -0.25})
		r.InitialPoints = points
	}), Options{MaxEvaluations: 3})

	require.NoError(t, r.Run(context.Background()))

	first := r.Data().Row(0)
	assert.Equal(t, 0.25, first["x0"])
	assert.Equal(t, -0.25, first["x1"])
	assert.InDelta(t, 0.125, first["f1"], 1e-12)
	assert.Contains(t, first, frame.TimestampColumn)
}

func TestRun_StopTerminates(t *testing.T) {
	r := New(materialized(t, nil), Options{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	// Wait for the first step, then stop.
	for ev := range r.Events() {
		if ev.Type == EventStep {
			r.Stop()
			break
		}
	}
	err := <-done
	assert.ErrorIs(t, err, ErrRunTerminated)
}

func TestRun_ContextCancelTerminates(t *testing.T) {
	r := New(materialized(t, nil), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for ev := range r.Events() {
		if ev.Type == EventStep {
			cancel()
			break
		}
	}
	assert.ErrorIs(t, <-done, ErrRunTerminated)
}

func TestRun_PauseGatesLoop(t *testing.T) {
	r := New(materialized(t, nil), Options{MaxEvaluations: 50})
	r.Pause()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	// Paused before the first evaluation; nothing happens until resume.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, r.Data().Len())

	r.Resume()
	require.NoError(t, <-done)
	assert.Equal(t, 50, r.Data().Len())
}

func TestRun_CriticalConstraintPausesRun(t *testing.T) {
	bound := materialized(t, func(r *routine.Routine) {
		// f2 is never below -1, so the constraint trips on the first step.
		r.VOCS.Constraints = map[string]vocs.Constraint{
			"f2": {Op: vocs.LessThan, Threshold: -1},
		}
		r.CriticalConstraintNames = []string{"f2"}
	})
	r := New(bound, Options{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	var sawCritical bool
	for ev := range r.Events() {
		if ev.Type == EventCriticalPause {
			sawCritical = true
			assert.Equal(t, "f2", ev.Reason)
			r.Stop()
			break
		}
	}
	assert.True(t, sawCritical)
	assert.ErrorIs(t, <-done, ErrRunTerminated)
	assert.Equal(t, 1, r.Data().Len(), "run pauses instead of continuing past the violation")
}

func TestRun_ArchivesAndRecordsRun(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	arch, err := archive.New(t.TempDir(), logger)
	require.NoError(t, err)
	store := db.NewStore(logger)
	require.NoError(t, store.Open(":memory:"))
	defer store.Close()

	bound := materialized(t, func(r *routine.Routine) {
		r.ID = "run-test-id"
		r.CreationTime = time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)
	})
	r := New(bound, Options{
		MaxEvaluations: 3,
		Archive:        arch,
		Store:          store,
		Logger:         logger,
	})
	require.NoError(t, r.Run(context.Background()))

	runs, err := arch.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "BadgerOpt-2026-08-25-090000.yaml", runs[0])

	saved, err := arch.Load(runs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Data.Len())

	recorded, err := store.RunsByRoutine("run-test-id")
	require.NoError(t, err)
	assert.Equal(t, runs, recorded)
}

func TestRun_EvaluationErrorSurfaces(t *testing.T) {
	// The objective is not an observable the environment declares, so the
	// first evaluation fails.
	bound := materialized(t, func(r *routine.Routine) {
		r.Generator = routine.GeneratorSpec{Name: "neldermead"}
		r.VOCS.Objectives = map[string]vocs.ObjectiveRule{"ghost": vocs.Minimize}
	})
	r := New(bound, Options{MaxEvaluations: 2})

	err := r.Run(context.Background())
	require.Error(t, err)

	events := collect(r.Events())
	types := eventTypes(events)
	assert.Contains(t, types, EventError)
	assert.Equal(t, EventEnd, types[len(types)-1])
}
