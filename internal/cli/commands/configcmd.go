package commands

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/badger-opt/badger/internal/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Show or change settings",
		Long: `Without arguments, list all settings. With a key, show its value.
With a key and a value, update the setting and write it to the config
file.`,
		Example: `  # List all settings
  badger config

  # Show the archive root
  badger config archive_root

  # Point the archive root somewhere else
  badger config archive_root /data/badger/archive`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig(cmd.Context())

			if len(args) == 0 {
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Key", "Value", "Description"})
				for _, item := range cfg.Items() {
					t.AppendRow(table.Row{item.Key, item.Value, item.Description})
				}
				t.Render()
				return nil
			}

			item, err := findItem(cfg, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%v\n", item.Value)
				return nil
			}

			if err := setItem(cfg, args[0], args[1]); err != nil {
				return err
			}
			path := config.FileUsed()
			if path == "" {
				root, err := config.DefaultRoot()
				if err != nil {
					return err
				}
				path = filepath.Join(root, config.DefaultFileName)
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "You set %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func findItem(cfg *config.Config, key string) (*config.Item, error) {
	for _, item := range cfg.Items() {
		if item.Key == key {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%s is not a valid Badger config key", key)
}

func setItem(cfg *config.Config, key, value string) error {
	switch key {
	case "plugin_root":
		cfg.PluginRoot = value
	case "template_root":
		cfg.TemplateRoot = value
	case "logbook_root":
		cfg.LogbookRoot = value
	case "archive_root":
		cfg.ArchiveRoot = value
	case "db_root":
		cfg.DBRoot = value
	case "log_dir":
		cfg.LogDir = value
	case "logging_level":
		cfg.LoggingLevel = value
	case "theme":
		cfg.Theme = value
	case "data_dump_period":
		period, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("data_dump_period must be a number of seconds: %w", err)
		}
		cfg.DataDumpPeriod = period
	case "enable_advanced":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("enable_advanced must be a boolean: %w", err)
		}
		cfg.EnableAdvanced = enabled
	case "auto_refresh":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto_refresh must be a boolean: %w", err)
		}
		cfg.AutoRefresh = enabled
	default:
		return fmt.Errorf("%s is not a valid Badger config key", key)
	}
	return nil
}
