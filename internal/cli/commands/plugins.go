package commands

import (
	"fmt"
	"sort"

	"github.com/badger-opt/badger/internal/factory"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewEnvCommand creates the env command.
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env [name]",
		Short: "List environments or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := factory.Default()
			if len(args) == 0 {
				return printNames(cmd, "Environments", reg.ListEnvironments())
			}
			return describeEnv(cmd, reg, args[0])
		},
	}
}

// NewGeneratorCommand creates the generator command.
func NewGeneratorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generator [name]",
		Short: "List optimization generators",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := factory.Default()
			names := reg.ListGenerators()
			if len(args) == 0 {
				return printNames(cmd, "Generators", names)
			}
			for _, name := range names {
				if name == args[0] {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), styleHeader.Render(name))
					return nil
				}
			}
			return &factory.ErrPluginNotFound{Kind: "generator", Name: args[0]}
		},
	}
}

// NewIntfCommand creates the intf command.
func NewIntfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "intf [name]",
		Short: "List machine interfaces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := factory.Default()
			names := reg.ListInterfaces()
			if len(args) == 0 {
				return printNames(cmd, "Interfaces", names)
			}
			for _, name := range names {
				if name == args[0] {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), styleHeader.Render(name))
					return nil
				}
			}
			return &factory.ErrPluginNotFound{Kind: "interface", Name: args[0]}
		},
	}
}

func printNames(cmd *cobra.Command, header string, names []string) error {
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, styleHeader.Render(header))
	for _, name := range names {
		_, _ = fmt.Fprintln(w, "  "+name)
	}
	return nil
}

func describeEnv(cmd *cobra.Command, reg *factory.Registry, name string) error {
	info, err := reg.Describe(name)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, styleHeader.Render(info.Name))
	if info.Interface != "" {
		_, _ = fmt.Fprintf(w, "Interface: %s\n", info.Interface)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Variable", "Min", "Max"})
	varNames := make([]string, 0, len(info.Variables))
	for v := range info.Variables {
		varNames = append(varNames, v)
	}
	sort.Strings(varNames)
	for _, v := range varNames {
		b := info.Variables[v]
		t.AppendRow(table.Row{v, b[0], b[1]})
	}
	t.Render()

	_, _ = fmt.Fprintln(w, styleBold.Render("Observables"))
	for _, o := range info.Observables {
		_, _ = fmt.Fprintln(w, "  "+o)
	}
	if len(info.Params) > 0 {
		_, _ = fmt.Fprintln(w, styleBold.Render("Params"))
		paramNames := make([]string, 0, len(info.Params))
		for p := range info.Params {
			paramNames = append(paramNames, p)
		}
		sort.Strings(paramNames)
		for _, p := range paramNames {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", p, info.Params[p])
		}
	}
	return nil
}
