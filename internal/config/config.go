// Package config loads the application settings: the path roots for
// plugins, templates, the archive, the logbook and the run database, plus
// core behavior knobs. Precedence (highest to lowest): flags > BADGER_*
// environment variables > config file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up under the config root.
const DefaultFileName = "config.yaml"

const (
	defaultLoggingLevel   = "WARNING"
	defaultTheme          = "dark"
	defaultDataDumpPeriod = 1.0
)

// Config holds the resolved settings.
type Config struct {
	PluginRoot   string `koanf:"plugin_root" yaml:"plugin_root"`
	TemplateRoot string `koanf:"template_root" yaml:"template_root"`
	LogbookRoot  string `koanf:"logbook_root" yaml:"logbook_root"`
	ArchiveRoot  string `koanf:"archive_root" yaml:"archive_root"`
	DBRoot       string `koanf:"db_root" yaml:"db_root"`
	LogDir       string `koanf:"log_dir" yaml:"log_dir"`

	LoggingLevel   string  `koanf:"logging_level" yaml:"logging_level"`
	DataDumpPeriod float64 `koanf:"data_dump_period" yaml:"data_dump_period"`
	Theme          string  `koanf:"theme" yaml:"theme"`
	EnableAdvanced bool    `koanf:"enable_advanced" yaml:"enable_advanced"`
	AutoRefresh    bool    `koanf:"auto_refresh" yaml:"auto_refresh"`
}

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
)

// DefaultRoot returns the per-user config root, e.g. ~/.config/badger.
func DefaultRoot() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, "badger"), nil
}

func defaults(root string) map[string]interface{} {
	return map[string]interface{}{
		"plugin_root":      "",
		"template_root":    filepath.Join(root, "templates"),
		"logbook_root":     filepath.Join(root, "logbook"),
		"archive_root":     filepath.Join(root, "archive"),
		"db_root":          filepath.Join(root, "db"),
		"log_dir":          filepath.Join(root, "logs"),
		"logging_level":    defaultLoggingLevel,
		"data_dump_period": defaultDataDumpPeriod,
		"theme":            defaultTheme,
		"enable_advanced":  false,
		"auto_refresh":     false,
	}
}

// Reset resets the koanf instance. Used for testing.
func Reset() {
	k = koanf.New(".")
	configFileUsed = ""
}

// Load loads configuration from file, environment variables, and flags.
// When cfgFile is empty, <config root>/config.yaml is used if it exists.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(root), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		candidate := filepath.Join(root, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			cfgFile = candidate
		}
	}
	configFileUsed = ""
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			if err := k.Load(file.Provider(cfgFile), kyaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
			}
			configFileUsed = cfgFile
		}
	}

	// 3. Environment variables: BADGER_ARCHIVE_ROOT -> archive_root
	if err := k.Load(env.Provider("BADGER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BADGER_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority). Only explicitly set flags are loaded;
	// kebab-case flag names map to snake_case config keys.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !k.Exists(key) {
				// Not a config key (e.g. --monitor); skip.
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// FileUsed returns the path of the config file loaded, if any.
func FileUsed() string {
	return configFileUsed
}

// EnsureDirs creates the managed path roots. The plugin root is external
// user content and is never created; when set it must already exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.TemplateRoot, c.LogbookRoot, c.ArchiveRoot, c.DBRoot, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if c.PluginRoot != "" {
		if _, err := os.Stat(c.PluginRoot); err != nil {
			return fmt.Errorf("plugin root %s is not accessible: %w", c.PluginRoot, err)
		}
	}
	return nil
}

// Save writes the settings to path as YAML.
func (c *Config) Save(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// DBPath returns the run database file under the db root.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBRoot, "badger.db")
}

// DumpPeriod returns the periodic run dump interval.
func (c *Config) DumpPeriod() time.Duration {
	return time.Duration(c.DataDumpPeriod * float64(time.Second))
}

// SlogLevel maps the configured logging level name onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LoggingLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Item is one settings entry, for display.
type Item struct {
	Key         string
	Value       interface{}
	Description string
}

// Items lists the settings in display order.
func (c *Config) Items() []Item {
	return []Item{
		{"plugin_root", c.PluginRoot, "external plugin directory"},
		{"template_root", c.TemplateRoot, "routine template directory"},
		{"logbook_root", c.LogbookRoot, "logbook entry directory"},
		{"archive_root", c.ArchiveRoot, "run archive directory"},
		{"db_root", c.DBRoot, "routine database directory"},
		{"log_dir", c.LogDir, "application log directory"},
		{"logging_level", c.LoggingLevel, "application logging level"},
		{"data_dump_period", c.DataDumpPeriod, "run data dump period in seconds"},
		{"theme", c.Theme, "interface theme"},
		{"enable_advanced", c.EnableAdvanced, "enable advanced features"},
		{"auto_refresh", c.AutoRefresh, "auto refresh run monitors"},
	}
}
