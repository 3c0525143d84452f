// Package cli wires the configuration, logger, database, and permission
// store behind the cobra commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/plumekit/geoperm/internal/application/usecase"
	"github.com/plumekit/geoperm/internal/config"
	"github.com/plumekit/geoperm/internal/domain/repository"
	"github.com/plumekit/geoperm/internal/infrastructure/persistence/sqlite"
	"github.com/plumekit/geoperm/internal/logging"
)

// App holds CLI dependencies.
type App struct {
	Config      *config.Config
	Permissions *usecase.SharedPermissions
	Repo        repository.PermissionRepository

	db  *sql.DB
	ctx context.Context
}

// NewApp creates a new CLI application with all dependencies.
func NewApp() (*App, error) {
	cfg, err := config.NewManager().Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if envLevel := os.Getenv("GEOPERM_LOG_LEVEL"); envLevel != "" {
		logLevel = envLevel
	}
	logger := logging.NewFromConfigValues(logLevel, cfg.Logging.Format)
	ctx := logging.WithContext(context.Background(), logger)

	db, err := sqlite.NewConnection(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open permission database: %w", err)
	}

	repo := sqlite.NewPermissionRepository(db)
	shared := usecase.NewSharedPermissions(repo)
	if err := shared.Load(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	return &App{
		Config:      cfg,
		Permissions: shared,
		Repo:        repo,
		db:          db,
		ctx:         ctx,
	}, nil
}

// Context returns the application context carrying the logger.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
