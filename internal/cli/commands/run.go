package commands

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/badger-opt/badger/internal/logbook"
	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/internal/runner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// RunOptions holds the run-loop options shared by `run` and `routine --run`.
type RunOptions struct {
	MaxEvaluations int
	MaxTime        time.Duration
	SkipInitial    bool
	Archive        bool
	Monitor        bool
	Logbook        bool
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().IntVar(&opts.MaxEvaluations, "max-eval", 0, "end the run after this many evaluations (0 = no limit)")
	cmd.Flags().DurationVar(&opts.MaxTime, "max-time", 0, "end the run after this duration (0 = no limit)")
	cmd.Flags().BoolVar(&opts.SkipInitial, "skip-init", false, "skip the initial points and start from the generator")
	cmd.Flags().BoolVar(&opts.Archive, "archive", true, "archive the run data")
	cmd.Flags().BoolVar(&opts.Monitor, "monitor", false, "show a live run monitor")
	cmd.Flags().BoolVar(&opts.Logbook, "logbook", false, "publish a logbook entry when the run ends")
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}
	var routineID, saveName string
	cmd := &cobra.Command{
		Use:   "run [routine-file]",
		Short: "Run a routine",
		Long: `Run a routine loaded from a YAML file or, with --routine, from the
saved routine database. Every evaluated point is archived under the
archive root unless --archive=false.`,
		Example: `  # Run a routine from a file, live monitor on
  badger run sphere.yaml --monitor

  # Run a saved routine for at most one minute
  badger run --routine 4f3e91aa --max-time 1m

  # Run and save the routine under a new name
  badger run sphere.yaml --save nightly-sphere`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && routineID == "" {
				return fmt.Errorf("a routine file or --routine id is required")
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var r *routine.Routine
			if routineID != "" {
				r, _, err = cmdCtx.Store.LoadRoutine(routineID)
			} else {
				r, err = loadRoutineFile(args[0])
			}
			if err != nil {
				return err
			}

			if saveName != "" {
				r.Name = saveName
				if err := cmdCtx.Store.SaveRoutine(r); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Routine saved as %s (%s)\n", r.Name, r.ID)
			}

			return executeRoutine(cmd, cmdCtx, r, opts)
		},
	}

	cmd.Flags().StringVar(&routineID, "routine", "", "id of a saved routine to run")
	cmd.Flags().StringVarP(&saveName, "save", "s", "", "save the routine under this name before running")
	addRunFlags(cmd, opts)

	return cmd
}

func loadRoutineFile(path string) (*routine.Routine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routine file %s: %w", path, err)
	}
	var r routine.Routine
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to parse routine file %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// executeRoutine materializes and runs a routine, streaming progress to the
// terminal or the live monitor.
func executeRoutine(cmd *cobra.Command, cmdCtx *CommandContext, r *routine.Routine, opts *RunOptions) error {
	bound, err := routine.Materialize(cmdCtx.Registry, r)
	if err != nil {
		return err
	}

	ropts := runner.Options{
		MaxEvaluations:    opts.MaxEvaluations,
		MaxTime:           opts.MaxTime,
		SkipInitialPoints: opts.SkipInitial,
		Store:             cmdCtx.Store,
		DumpPeriod:        cmdCtx.Cfg.DumpPeriod(),
		Logger:            cmdCtx.Logger,
	}
	if opts.Archive {
		ropts.Archive = cmdCtx.Archive
	}
	run := runner.New(bound, ropts)

	if opts.Monitor {
		err = monitorRun(cmd, run, r)
	} else {
		err = streamRun(cmd, run, r)
	}
	if errors.Is(err, runner.ErrRunTerminated) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), styleWarning.Render("Run terminated"))
		err = nil
	}
	if err != nil {
		return err
	}

	if opts.Logbook {
		lb, lbErr := logbook.New(cmdCtx.Cfg.LogbookRoot)
		if lbErr != nil {
			return lbErr
		}
		lb.ArchiveRoot = cmdCtx.Cfg.ArchiveRoot
		fname, lbErr := lb.Publish(r, run.Data())
		if lbErr != nil {
			return lbErr
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logbook entry written: %s\n", fname)
	}
	return nil
}

// streamRun prints one line per evaluation until the run ends.
func streamRun(cmd *cobra.Command, run *runner.Runner, r *routine.Routine) error {
	done := make(chan error, 1)
	go func() { done <- run.Run(cmd.Context()) }()

	w := cmd.OutOrStdout()
	for ev := range run.Events() {
		switch ev.Type {
		case runner.EventStart:
			_, _ = fmt.Fprintln(w, styleHeader.Render("Running routine "+r.Name))
		case runner.EventStep:
			line := formatSolution(ev.Solution)
			if ev.Solution.IsOptimal {
				line = styleSuccess.Render(line)
			}
			_, _ = fmt.Fprintln(w, line)
		case runner.EventCriticalPause:
			_, _ = fmt.Fprintln(w, styleError.Render("Critical constraint violated: "+ev.Reason))
			// Unattended run, no operator to resume it.
			run.Stop()
		case runner.EventEnd:
			_, _ = fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("Run ended after %d evaluation(s)", run.Data().Len())))
		case runner.EventError:
			_, _ = fmt.Fprintln(w, styleError.Render("Run error: "+ev.Err.Error()))
		}
	}
	return <-done
}

func formatSolution(s *runner.Solution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d |", s.Index)
	for _, name := range sortedKeys(s.Objectives) {
		fmt.Fprintf(&b, " %s=%.6g", name, s.Objectives[name])
	}
	for _, name := range sortedKeys(s.Variables) {
		fmt.Fprintf(&b, " %s=%.6g", name, s.Variables[name])
	}
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
