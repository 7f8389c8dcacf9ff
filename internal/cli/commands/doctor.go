package commands

import (
	"fmt"
	"os"

	"github.com/badger-opt/badger/internal/db"
	"github.com/badger-opt/badger/internal/factory"
	"github.com/spf13/cobra"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Badger status self-check",
		Long: `Check that the configured path roots are usable, the routine database
opens, and plugins are registered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())
			w := cmd.OutOrStdout()
			issues := 0

			report := func(ok bool, label string) {
				if ok {
					_, _ = fmt.Fprintf(w, "%s %s\n", styleSuccess.Render("ok"), label)
				} else {
					issues++
					_, _ = fmt.Fprintf(w, "%s %s\n", styleError.Render("!!"), label)
				}
			}

			for _, root := range []struct{ label, path string }{
				{"template root", cfg.TemplateRoot},
				{"logbook root", cfg.LogbookRoot},
				{"archive root", cfg.ArchiveRoot},
				{"database root", cfg.DBRoot},
				{"log directory", cfg.LogDir},
			} {
				report(root.path != "", fmt.Sprintf("%s: %s", root.label, orUnset(root.path)))
			}
			if cfg.PluginRoot != "" {
				_, err := os.Stat(cfg.PluginRoot)
				report(err == nil, "plugin root: "+cfg.PluginRoot)
			}

			if err := cfg.EnsureDirs(); err != nil {
				report(false, "create path roots: "+err.Error())
			} else {
				store := db.NewStore(GetLogger(cmd.Context()))
				if err := store.Open(cfg.DBPath()); err != nil {
					report(false, "routine database: "+err.Error())
				} else {
					report(true, "routine database: "+cfg.DBPath())
					_ = store.Close()
				}
			}

			reg := factory.Default()
			report(len(reg.ListEnvironments()) > 0, fmt.Sprintf("%d environment(s) registered", len(reg.ListEnvironments())))
			report(len(reg.ListGenerators()) > 0, fmt.Sprintf("%d generator(s) registered", len(reg.ListGenerators())))
			report(len(reg.ListInterfaces()) > 0, fmt.Sprintf("%d interface(s) registered", len(reg.ListInterfaces())))

			if issues > 0 {
				return fmt.Errorf("found %d issue(s), run `badger init` or `badger config` to fix them", issues)
			}
			_, _ = fmt.Fprintln(w, styleSuccess.Render("Badger is healthy!"))
			return nil
		},
	}
}
