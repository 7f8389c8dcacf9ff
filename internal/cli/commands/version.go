package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display Badger version information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Badger v%s\n", version)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "The missing optimizer")
		},
	}
}

// ShowInfo prints the info block shown by a bare `badger` invocation.
func ShowInfo(cmd *cobra.Command, version string) error {
	cfg := GetConfig(cmd.Context())
	w := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(w, "name: Badger the optimizer\n")
	_, _ = fmt.Fprintf(w, "version: %s\n", version)
	_, _ = fmt.Fprintf(w, "plugin root: %s\n", orUnset(cfg.PluginRoot))
	_, _ = fmt.Fprintf(w, "template root: %s\n", orUnset(cfg.TemplateRoot))
	_, _ = fmt.Fprintf(w, "logbook root: %s\n", orUnset(cfg.LogbookRoot))
	_, _ = fmt.Fprintf(w, "archive root: %s\n", orUnset(cfg.ArchiveRoot))
	_, _ = fmt.Fprintf(w, "database root: %s\n", orUnset(cfg.DBRoot))
	_, _ = fmt.Fprintf(w, "logging directory: %s\n", orUnset(cfg.LogDir))
	_, _ = fmt.Fprintf(w, "logging level: %s\n", cfg.LoggingLevel)
	return nil
}

func orUnset(path string) string {
	if path == "" {
		return "(not set)"
	}
	return path
}
