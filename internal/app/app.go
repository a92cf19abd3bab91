// Package app wires the sqlshell service together.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sqlconnect"
	"sqlconnect/internal/config"
	"sqlconnect/internal/maintenance"
	"sqlconnect/internal/platform/logger"
	"sqlconnect/internal/platform/migrations"
	"sqlconnect/internal/server"
	"sqlconnect/pkg/backoff"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "sqlshell",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.log }

// OpenConn opens the configured database with the configured backoff.
func (a *App) OpenConn() (*sqlconnect.Conn, error) {
	return sqlconnect.Open(a.cfg.DB.Path, &sqlconnect.Options{
		Backoff: backoff.Config{
			MaxAttempts:    a.cfg.Backoff.MaxAttempts,
			InitialDelay:   a.cfg.Backoff.InitialDelay,
			MaxDelay:       a.cfg.Backoff.MaxDelay,
			MaxElapsedTime: a.cfg.Backoff.MaxElapsedTime,
			Multiplier:     a.cfg.Backoff.Multiplier,
		},
		Logger: a.log,
	})
}

// Run starts the HTTP service and blocks until shutdown.
func (a *App) Run() error {
	a.log.Info("starting", slog.String("db", a.cfg.DB.Path))
	defer func() { _ = logger.Close(a.log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.DB.Migrations != "" {
		if err := migrations.Apply(a.cfg.DB.Path, a.cfg.DB.Migrations); err != nil {
			return err
		}
		version, dirty, err := migrations.Version(a.cfg.DB.Path, a.cfg.DB.Migrations)
		if err != nil {
			return err
		}
		a.log.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}

	conn, err := a.OpenConn()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var dbMu sync.Mutex

	var maint *maintenance.Runner
	if a.cfg.Maintenance.Spec != "" {
		maint = maintenance.New(conn, &dbMu, a.log)
		if err := maint.Schedule(a.cfg.Maintenance.Spec, a.cfg.Maintenance.Script); err != nil {
			return err
		}
		maint.Start()
		defer maint.Stop()
	}

	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    a.cfg.HTTP.Addr,
		Handler: server.New(conn, &dbMu, a.log).Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.log.Info("listening", slog.String("addr", a.cfg.HTTP.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
