// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/queue"
	"github.com/tildaslashalef/notesync/internal/remote"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/urfave/cli/v2"
)

// App represents the application instance with its dependencies
type App struct {
	Config       *config.Config
	Settings     *config.SettingsService
	Notes        *note.Service
	Queue        *queue.SQLRepository
	Gateway      *remote.HTTPGateway
	Logs         *sync.SQLLogRepository
	Orchestrator *sync.Orchestrator
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices initializes all application services
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.GetGlobalLogger()
	ctx := context.Background()

	settingsService := config.NewSettingsService(db, cfg, logger)
	if err := settingsService.LoadSyncSettings(ctx); err != nil {
		loggy.Warn("Failed to load sync settings from database", "error", err)
		// Continue anyway, using the environment
	}

	notes := note.NewService(db, queue.JournalFactory(cfg.Sync.QueueLimit, logger), logger)
	queueRepo := queue.NewSQLRepository(db, cfg.Sync.QueueLimit, logger)
	gateway := remote.NewHTTPGateway(cfg.Server, logger)
	logs := sync.NewSQLLogRepository(db, logger)

	opts, err := sync.OptionsFromConfig(cfg.Sync)
	if err != nil {
		return nil, fmt.Errorf("invalid sync configuration: %w", err)
	}

	orchestrator := sync.NewOrchestrator(notes, queueRepo, gateway, logs, opts, logger)
	if !cfg.Server.Enabled {
		orchestrator.SetOnline(false)
	}

	return &App{
		Config:       cfg,
		Settings:     settingsService,
		Notes:        notes,
		Queue:        queueRepo,
		Gateway:      gateway,
		Logs:         logs,
		Orchestrator: orchestrator,
	}, nil
}

// OwnerID returns the configured owner or an error telling the user how to
// set one
func (app *App) OwnerID() (string, error) {
	if app.Config.Sync.OwnerID == "" {
		return "", fmt.Errorf("no owner configured, run 'notesync sync config --owner <id>' first")
	}
	return app.Config.Sync.OwnerID, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.Orchestrator != nil {
		app.Orchestrator.Stop()
	}

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return loggy.Close()
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
