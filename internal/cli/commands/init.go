package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/badger-opt/badger/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Badger config and path roots",
		Long: `Write the current settings to the config file and create the template,
logbook, archive, database and log directories. Safe to run on a fresh
machine; an existing config file is kept unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())

			root, err := config.DefaultRoot()
			if err != nil {
				return err
			}
			path := filepath.Join(root, config.DefaultFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render("Badger is ready to go!"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}
