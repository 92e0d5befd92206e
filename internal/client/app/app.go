// Package app is the agent's composition root: it wires the remote client,
// the local store, the sync and retry coordinators, and runs the periodic
// sync loop.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/dlukins/caresync/internal/client/config"
	"github.com/dlukins/caresync/internal/client/events"
	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/client/retry"
	"github.com/dlukins/caresync/internal/client/shares"
	"github.com/dlukins/caresync/internal/client/store"
	"github.com/dlukins/caresync/internal/client/syncer"
	"github.com/dlukins/caresync/internal/client/zones"
	"github.com/dlukins/caresync/internal/filex"
	"github.com/dlukins/caresync/internal/logging"
)

type App struct {
	cfg   *config.Config
	log   logging.Logger
	hooks events.Hooks

	Store *store.Manager
	Sync  *syncer.Coordinator
	Retry *retry.Coordinator
	Zones *zones.Manager

	// Shares is nil while running local-only; sharing needs a remote.
	Shares *shares.Manager
}

// New wires the agent. hooks carries the UI-facing callbacks; zero value is
// fine for headless runs.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, hooks events.Hooks) (*App, error) {
	if log == nil {
		log = logging.NewJSONLogger()
	}

	var svc remote.Service
	if cfg.ServerAddr != "" {
		svc = remote.NewHTTPClient(cfg.ServerAddr, store.ReadDeviceToken(cfg.DataDir))
	}

	st, err := store.Open(ctx, store.Options{
		DataDir: cfg.DataDir,
		Logger:  log,
		Hooks:   hooks,
		Remote:  svc,
	})
	if err != nil {
		return nil, err
	}

	photosDir, err := filex.EnsureDir(cfg.PhotosDir())
	if err != nil {
		return nil, err
	}

	zm := zones.NewManager(svc, log)
	rc := retry.New(svc, func(recordID string) ([]byte, error) {
		return filex.ReadPhoto(photosDir, recordID)
	}, log)

	sc := syncer.New(syncer.Options{
		Owner:     cfg.Account,
		Service:   svc,
		Store:     st,
		Zones:     zm,
		Retry:     rc,
		Hooks:     hooks,
		Logger:    log,
		PhotosDir: photosDir,
	})

	a := &App{cfg: cfg, log: log, hooks: hooks, Store: st, Sync: sc, Retry: rc, Zones: zm}
	if svc != nil {
		a.Shares = shares.NewManager(svc, log)
	}

	if st.RemoteAvailable() {
		if err := a.bootstrapRemote(ctx, zm); err != nil {
			// remote bring-up failures degrade to queued work, never
			// block local operation
			log.Warn(ctx, "remote bootstrap incomplete", "error", err)
		}
	}
	return a, nil
}

// bootstrapRemote makes the remote side ready for this device: the private
// zone, its subscription, discovery of zones shared in, migration of
// anything written while local-only, and a first incremental pull.
func (a *App) bootstrapRemote(ctx context.Context, zm *zones.Manager) error {
	zone := zones.OwnerZone(a.cfg.Account)
	if err := zm.EnsureZone(ctx, zone); err != nil {
		return err
	}
	if err := zm.EnsureSubscription(ctx, zone, models.ScopeOwner); err != nil {
		return err
	}
	if err := a.Sync.AdoptSharedZone(ctx); err != nil {
		a.log.Warn(ctx, "shared-zone discovery failed", "error", err)
	}
	if err := a.Sync.MigrateLocalOnly(ctx); err != nil {
		return err
	}
	scope := a.Store.CurrentScope(ctx)
	if err := a.Sync.IncrementalSync(ctx, scope); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
		return err
	}
	return a.Sync.DownloadMissingPhotos(ctx, scope)
}

// Run drives the periodic loops until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if !a.Store.RemoteAvailable() {
		a.log.Info(ctx, "running local-only, no sync loop")
		<-ctx.Done()
		return nil
	}

	go a.Retry.Run(ctx, a.cfg.PingInterval.Duration)

	ticker := time.NewTicker(a.cfg.SyncInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		a.Store.VerifyAvailability(ctx)
		if !a.Store.RemoteAvailable() {
			a.log.Warn(ctx, "account no longer available, stopping sync loop")
			<-ctx.Done()
			return nil
		}

		scope := a.Store.CurrentScope(ctx)
		if err := a.Sync.IncrementalSync(ctx, scope); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			a.log.Warn(ctx, "sync pass failed", "error", err)
			continue
		}
		a.Retry.RetryPending(ctx)
		if err := a.Sync.DownloadMissingPhotos(ctx, scope); err != nil {
			a.log.Warn(ctx, "photo pass failed", "error", err)
		}
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}
