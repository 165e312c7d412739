// Package app wires the memory client and its collaborators from
// configuration. One App is built at process start and closed on exit.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcliao/tiered-memory/internal/analytics"
	"github.com/rcliao/tiered-memory/internal/config"
	"github.com/rcliao/tiered-memory/internal/logger"
	"github.com/rcliao/tiered-memory/internal/memory"
	"github.com/rcliao/tiered-memory/internal/permission"
	"github.com/rcliao/tiered-memory/internal/remote"
	"github.com/rcliao/tiered-memory/internal/store"
)

// App holds the long-lived components shared by every request.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Matrix    *permission.Matrix
	Store     *store.SQLiteStore
	Gateway   *remote.Gateway
	Analytics *analytics.Engine
	Client    *memory.Client
}

// New builds an App. The local store is opened only when enabled; the
// gateway is always built but only used when configured.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	matrix, err := permission.Load(cfg.PermissionsFile)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	a := &App{Config: cfg, Log: log, Matrix: matrix}

	a.Gateway = remote.New(remote.Options{
		BaseURL:     cfg.RemoteURL,
		APIKey:      cfg.RemoteAPIKey,
		Timeout:     cfg.RemoteTimeout,
		Retries:     cfg.RemoteRetries,
		DisabledOps: cfg.RemoteDisabledOps,
		Logger:      log,
	})

	sources := []analytics.Source{analytics.RemoteSource(a.Gateway)}
	opts := memory.Options{
		Matrix:          matrix,
		FailUnsupported: cfg.UnsupportedPolicy == config.PolicyFail,
		Logger:          log,
	}
	if a.Gateway.Configured() {
		opts.Remote = a.Gateway
	}

	if cfg.LocalEnabled {
		s, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.Store = s
		opts.Local = s
		sources = append(sources, analytics.LocalSource(s))
	}

	a.Analytics = analytics.New(log, sources)
	opts.Analytics = a.Analytics
	a.Client = memory.New(opts)

	log.Debug().
		Bool("remote", a.Gateway.Configured()).
		Strs("remote_disabled", a.Gateway.Disabled()).
		Bool("local", cfg.LocalEnabled).
		Str("db", cfg.DBPath).
		Str("unsupported_policy", cfg.UnsupportedPolicy).
		Msg("app ready")
	return a, nil
}

// Close releases the local store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
