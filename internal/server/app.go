// Package server composes the sync service: database, migrations, services,
// and the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dlukins/caresync/internal/dbx"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/dlukins/caresync/internal/server/api"
	"github.com/dlukins/caresync/internal/server/config"
	"github.com/dlukins/caresync/internal/server/migrations"
	"github.com/dlukins/caresync/internal/server/services"
	"github.com/dlukins/caresync/internal/server/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg *config.Config
	log logging.Logger
	db  *sql.DB
	srv *http.Server
}

func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	backend := services.Backend{
		DB:     db,
		Run:    dbx.DBRunner{DB: db},
		Stores: storage.NewPostgresStore,
	}
	secret := []byte(cfg.JWTSecret)

	handler := api.NewHandler(
		services.NewSyncService(backend, log),
		services.NewShareService(backend, log),
		services.NewUserService(backend, secret, cfg.TokenTTL.Duration, log),
		services.NewAssetService(backend, cfg, log),
		secret,
		log,
	)

	return &App{
		cfg: cfg,
		log: log,
		db:  db,
		srv: &http.Server{Addr: cfg.Addr, Handler: handler.Router()},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "listening", "addr", a.cfg.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return a.db.Close()
}
