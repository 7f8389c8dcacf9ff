package commands

import (
	"fmt"
	"os"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/internal/template"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewTemplateCommand creates the template command group.
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage routine templates",
	}
	cmd.AddCommand(newTemplateListCommand())
	cmd.AddCommand(newTemplateShowCommand())
	cmd.AddCommand(newTemplateApplyCommand())
	cmd.AddCommand(newTemplateDeleteCommand())
	cmd.AddCommand(newTemplateMergeCommand())
	return cmd
}

func templateStore(cmd *cobra.Command) (*template.Store, error) {
	cfg := GetConfig(cmd.Context())
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return template.NewStore(cfg.TemplateRoot)
}

func newTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := templateStore(cmd)
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No template has been saved yet")
				return nil
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newTemplateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := templateStore(cmd)
			if err != nil {
				return err
			}
			tpl, err := store.Load(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(tpl)
			if err != nil {
				return fmt.Errorf("failed to encode template %s: %w", args[0], err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newTemplateApplyCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "apply <name> [routine-file]",
		Short: "Fill a routine's absent fields from a template",
		Long: `Apply a template to a routine file. Fields the routine already sets
are kept; absent ones are filled from the template. Without a routine
file the template is expanded into a fresh routine.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := templateStore(cmd)
			if err != nil {
				return err
			}
			tpl, err := store.Load(args[0])
			if err != nil {
				return err
			}

			r := &routine.Routine{}
			if len(args) == 2 {
				raw, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("failed to read routine file %s: %w", args[1], err)
				}
				if err := yaml.Unmarshal(raw, r); err != nil {
					return fmt.Errorf("failed to parse routine file %s: %w", args[1], err)
				}
			}
			if r.Name == "" {
				r.Name = tpl.Name
			}
			template.Apply(tpl, r)

			out, err := yaml.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode routine: %w", err)
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, out, 0o644); err != nil {
					return fmt.Errorf("failed to write routine file %s: %w", outPath, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Routine written to %s\n", outPath)
				return nil
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the filled routine to this file")
	return cmd
}

func newTemplateDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := templateStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Template %s deleted\n", args[0])
			return nil
		},
	}
}

func newTemplateMergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <template-file> <config-file>",
		Short: "Fill a config file's absent keys from a template file",
		Long: `Merge template defaults into a YAML config file. Keys already present
in the config are never clobbered; the merged file is written back in
place. A missing config file is created from the template.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := template.MergeDefaults(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config %s updated\n", args[1])
			return nil
		},
	}
}
