package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// RoutineOptions holds options for the routine command.
type RoutineOptions struct {
	Run     bool
	Remove  bool
	Keyword string
	Tags    []string
	Export  string
	Import  string
	RunOptions
}

// NewRoutineCommand creates the routine command.
func NewRoutineCommand() *cobra.Command {
	opts := &RoutineOptions{}
	cmd := &cobra.Command{
		Use:   "routine [id]",
		Short: "List, show or run saved routines",
		Long: `Without arguments, list the saved routines. With an id, show the
routine configuration, or run it with --run.`,
		Example: `  # List saved routines
  badger routine

  # Show a routine
  badger routine 4f3e91aa

  # Run a saved routine for at most 20 evaluations
  badger routine 4f3e91aa --run --max-eval 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if opts.Import != "" {
				return importRoutines(cmd, cmdCtx, opts.Import)
			}
			if opts.Export != "" {
				return exportRoutines(cmd, cmdCtx, opts.Export, args)
			}
			if len(args) == 0 {
				return listRoutines(cmd, cmdCtx, opts)
			}
			if opts.Remove {
				return removeRoutine(cmd, cmdCtx, args[0])
			}
			return showRoutine(cmd, cmdCtx, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Run, "run", "r", false, "run the routine")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "remove the routine and its run records")
	cmd.Flags().StringVarP(&opts.Keyword, "keyword", "k", "", "filter routines by name keyword")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "filter routines by tag (repeatable)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "export routines to a database file")
	cmd.Flags().StringVar(&opts.Import, "import", "", "import routines from a database file")
	addRunFlags(cmd, &opts.RunOptions)

	return cmd
}

func listRoutines(cmd *cobra.Command, cmdCtx *CommandContext, opts *RoutineOptions) error {
	routines, err := cmdCtx.Store.ListRoutines(opts.Keyword, opts.Tags)
	if err != nil {
		return err
	}
	if len(routines) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No routine has been saved yet")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Environment", "Saved"})
	for _, r := range routines {
		t.AppendRow(table.Row{r.ID, r.Name, r.Environment, r.SavedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
	return nil
}

func showRoutine(cmd *cobra.Command, cmdCtx *CommandContext, id string, opts *RoutineOptions) error {
	r, savedAt, err := cmdCtx.Store.LoadRoutine(id)
	if err != nil {
		return err
	}

	if opts.Run {
		return executeRoutine(cmd, cmdCtx, r, &opts.RunOptions)
	}

	out, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode routine %s: %w", id, err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), styleMuted.Render("saved at "+savedAt.Format("2006-01-02 15:04:05")))
	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func removeRoutine(cmd *cobra.Command, cmdCtx *CommandContext, id string) error {
	if err := cmdCtx.Store.RemoveRoutine(id, true); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Routine %s removed\n", id)
	return nil
}

func importRoutines(cmd *cobra.Command, cmdCtx *CommandContext, path string) error {
	if err := cmdCtx.Store.ImportRoutines(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Routines imported from %s\n", path)
	return nil
}

func exportRoutines(cmd *cobra.Command, cmdCtx *CommandContext, path string, ids []string) error {
	if len(ids) == 0 {
		routines, err := cmdCtx.Store.ListRoutines("", nil)
		if err != nil {
			return err
		}
		for _, r := range routines {
			ids = append(ids, r.ID)
		}
	}
	if err := cmdCtx.Store.ExportRoutines(path, ids); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d routine(s) to %s\n", len(ids), path)
	return nil
}
