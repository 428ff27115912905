package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"strata/internal/config"
	"strata/internal/domain"
	"strata/internal/logging"
	"strata/internal/repository"
	"strata/internal/repository/postgres"
	"strata/internal/repository/sqlite"
	"strata/internal/service"
)

// cliProvider is the principal provider of commands run from the terminal
const cliProvider = "cli"

// app is the state shared by every command
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	adapter repository.Adapter
	engine  *service.Engine
}

// openApp loads the config, builds the logger and opens the database
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	adapter, err := openAdapter(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("driver", cfg.Database.Driver).Msg("database opened")

	engine := service.NewEngine(repository.NewStore(adapter), service.Options{Logger: &logger})
	return &app{cfg: cfg, logger: logger, adapter: adapter, engine: engine}, nil
}

func (a *app) Close() error {
	return a.adapter.Close()
}

// session opens a session for the cli principal named by --as
func (a *app) session(ctx context.Context) (domain.Session, error) {
	session, created, err := a.engine.CreateSession(ctx, cliProvider, identity, true)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to open session: %w", err)
	}
	if created {
		a.logger.Info().Str("identifier", identity).Str("subject", session.Subject).Msg("created cli principal")
	}
	return *session, nil
}

// lockOptions turns the locks section into WithAdvisoryLock options
func (a *app) lockOptions() service.WithAdvisoryLockOptions {
	return service.WithAdvisoryLockOptions{
		LeaseDuration:   a.cfg.Locks.Lease.Duration(),
		AcquireInterval: a.cfg.Locks.AcquireInterval.Duration(),
		RenewInterval:   a.cfg.Locks.RenewInterval.Duration(),
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, _, err = config.LoadFromPath(configFile)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openAdapter(ctx context.Context, db config.DatabaseConfig) (repository.Adapter, error) {
	switch db.Driver {
	case config.DriverSQLite:
		return sqlite.Open(db.DSN)
	case config.DriverSQLiteNcruces:
		return sqlite.OpenNcruces(db.DSN)
	case config.DriverPostgres:
		return postgres.Open(ctx, db.DSN, postgres.Options{})
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

// withApp runs fn with an open app and an admin session
func withApp(ctx context.Context, fn func(ctx context.Context, a *app, session domain.Session) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.session(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a, session)
}
