// Package server initializes and runs the Gatekeeper API server.
// It opens storage, builds the auth, user and audit services, serves HTTP
// and shuts everything down gracefully on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"

	apphttp "github.com/dmitrijs2005/gatekeeper/internal/server/http"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	storage *Storage
	audit   *services.AuditService
	http    *apphttp.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	storage, err := OpenStorage(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hasher := auth.NewPasswordHasher(c.BcryptCost)
	tokens := auth.NewTokenManager(
		[]byte(c.AccessTokenSecret),
		[]byte(c.RefreshTokenSecret),
		c.AccessTokenValidityDuration,
		c.RefreshTokenValidityDuration,
	)

	as := services.NewAuthService(storage.Tx, storage.Repos, hasher, tokens, logger)
	us := services.NewUserService(storage.Tx, storage.Repos, hasher, logger)
	audit := services.NewAuditService(storage.Tx, storage.Repos, logger, c.AuditWriteTimeout)

	srv := apphttp.NewServer(apphttp.Options{
		Address:         c.HTTPAddr,
		APIPrefix:       c.APIPrefix,
		Environment:     c.Env,
		AuditExclude:    c.AuditExcludePrefixes,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}, apphttp.Deps{
		Auth:   as,
		Users:  us,
		Audit:  audit,
		Tokens: tokens,
		Guard:  auth.NewGuard(logger),
		Ping:   storage.Ping,
		Logger: logger,
	})

	return &App{config: c, logger: logger, storage: storage, audit: audit, http: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a signal arrives. Pending audit
// writes are flushed before the database is closed.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "env", app.config.Env)
	app.initSignalHandler(cancelFunc)

	runErr := app.http.Run(ctx)
	return errors.Join(runErr, app.shutdown(ctx))
}

func (app *App) shutdown(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.audit.Close(flushCtx); err != nil {
		app.logger.Error(ctx, "audit flush incomplete", "error", err)
		errs = append(errs, err)
	}
	if err := app.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close error: %w", err))
	}
	app.logger.Info(ctx, "App stopped")
	return errors.Join(errs...)
}
