// Package gametimekeeper is the embeddable core of a parental "game time"
// allowance app: per-child minute balances, supervised sessions with a cap,
// a PIN-gated parent mode and SQLite-backed persistence with JSON backups.
// The presentation layer drives the engine and renders its results; the core
// renders nothing and opens no network surface.
package gametimekeeper

import (
	"go.uber.org/zap"

	"gametime-keeper/internal/config"
	"gametime-keeper/internal/engine"
	"gametime-keeper/internal/logger"
	"gametime-keeper/internal/storage"
)

// App wires the persistence gateway and the accounting engine for a host
// presentation layer. Construct one at process start and share it.
type App struct {
	Engine *engine.Engine
	Store  *storage.Store
	Logger *zap.Logger
}

// Open loads configuration from the environment, opens the store at the
// configured path and returns a ready App.
func Open() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return OpenWith(cfg)
}

// OpenWith wires an App from an explicit config.
func OpenWith(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Development, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.DatabasePath, cfg.LogRetention, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	eng, err := engine.New(store, engine.Options{
		SessionCapMinutes: cfg.SessionCapMinutes,
		MaxProfiles:       cfg.MaxProfiles,
		MaxGrantMinutes:   cfg.MaxGrantMinutes,
		PINMaxAttempts:    cfg.PINMaxAttempts,
		PINLockout:        cfg.PINLockout,
	}, log)
	if err != nil {
		_ = store.Close()
		_ = log.Sync()
		return nil, err
	}

	return &App{Engine: eng, Store: store, Logger: log}, nil
}

// Close flushes the current snapshot best-effort and releases the store.
func (a *App) Close() error {
	a.Engine.Flush()
	err := a.Store.Close()
	_ = a.Logger.Sync()
	return err
}
