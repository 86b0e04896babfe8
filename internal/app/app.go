// Package app wires the auth client components for the CLI edge. Library
// consumers construct the pieces themselves; this is the default assembly.
package app

import (
	"github.com/SchemaBio/schema-platform-sub003/config"
	"github.com/SchemaBio/schema-platform-sub003/internal/adapters/api"
	"github.com/SchemaBio/schema-platform-sub003/internal/adapters/storage"
	"github.com/SchemaBio/schema-platform-sub003/internal/session"
	"github.com/SchemaBio/schema-platform-sub003/internal/store"
	"github.com/SchemaBio/schema-platform-sub003/internal/usecase"
	pkglog "github.com/SchemaBio/schema-platform-sub003/pkg/log"
)

type App struct {
	Cfg     *config.Config
	Logger  pkglog.Logger
	Store   *store.Store
	Service usecase.Service
	Manager *session.Manager
}

// Callbacks are the UI-facing hooks forwarded to the session manager.
type Callbacks struct {
	OnLogout    func()
	OnAuthError func(err error)
}

// New assembles the default client stack from configuration.
func New(cfg *config.Config, cb Callbacks) *App {
	logger := pkglog.New(cfg.AppEnv)

	adapter := storage.NewFileAdapter(cfg.SessionDir, pkglog.Component(logger, "storage"))
	st := store.New(adapter, pkglog.Component(logger, "store"))
	client := api.NewHTTPClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	service := usecase.NewAuthService(client, pkglog.Component(logger, "auth"), cfg.RefreshThreshold)
	manager := session.NewManager(st, service, pkglog.Component(logger, "session"), session.Config{
		Threshold:   cfg.RefreshThreshold,
		MinDelay:    cfg.MinRefreshDelay,
		OnLogout:    cb.OnLogout,
		OnAuthError: cb.OnAuthError,
	})

	return &App{Cfg: cfg, Logger: logger, Store: st, Service: service, Manager: manager}
}

// Close tears down the session manager; no refresh timer fires afterwards.
func (a *App) Close() {
	a.Manager.Close()
}
