package commands

import (
	"context"
	"log/slog"

	"github.com/badger-opt/badger/internal/archive"
	"github.com/badger-opt/badger/internal/config"
	"github.com/badger-opt/badger/internal/db"
	"github.com/badger-opt/badger/internal/factory"
	"github.com/spf13/cobra"
)

// configKey stores the loaded settings in the command context.
type configKey struct{}

// loggerKey stores the logger in the command context.
type loggerKey struct{}

// WithConfig stores the settings in the context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the settings from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg, err := config.Load("", nil)
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *db.Store
	Archive  *archive.Archive
	Registry *factory.Registry
}

// NewCommandContext opens the routine store and archive for a command.
// The returned cleanup function must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := GetConfig(cmd.Context())
	logger := GetLogger(cmd.Context())

	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	store := db.NewStore(logger)
	if err := store.Open(cfg.DBPath()); err != nil {
		return nil, nil, err
	}

	arch, err := archive.New(cfg.ArchiveRoot, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = store.Close()
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Store:    store,
		Archive:  arch,
		Registry: factory.Default(),
	}, cleanup, nil
}
