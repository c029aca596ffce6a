// Package app opens a workspace: config, logger, state database and the
// engine the commands share.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"aeval/internal/config"
	"aeval/internal/db"
	"aeval/internal/engine"
	"aeval/internal/fixtures"
	"aeval/internal/logger"
	"aeval/internal/migrate"
)

// Options selects the workspace and, optionally, a config file outside it.
type Options struct {
	Workspace  string
	ConfigPath string
	// Logger overrides the one built from the config.
	Logger *slog.Logger
}

type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Open prepares the workspace and returns a ready engine. The caller must
// Close the runtime.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	cfg, err := LoadConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		if log, err = logger.Setup(cfg.Log); err != nil {
			return nil, err
		}
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}

	store := fixtures.LoadDir(cfg.Fixtures.Dir, log)
	e, err := engine.New(conn, cfg, store)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e.Logger = log
	e.Metadata.Logger = log
	return &Runtime{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    e,
		Logger:    log,
	}, nil
}

// LoadConfig reads path when set, else the workspace config with defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Load(workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	err := r.DB.Close()
	r.DB = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
