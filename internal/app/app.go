// Package app wires the registry, search service, catalog manager and bridge
// together for the lexisd daemon and the lexis CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sagerenn/lexis/internal/catalog"
	"github.com/sagerenn/lexis/internal/config"
	"github.com/sagerenn/lexis/internal/dict/registry"
	"github.com/sagerenn/lexis/internal/httpx"
	"github.com/sagerenn/lexis/internal/observability"
	"github.com/sagerenn/lexis/internal/service"
)

type App struct {
	Config   config.Config
	Log      *observability.Logger
	Metrics  *observability.Metrics
	Registry *registry.Registry
	Service  *service.Service
	Catalogs *catalog.Manager
}

// New opens the registry and loads every enabled dictionary.
func New(cfg config.Config, log *observability.Logger) (*App, error) {
	if log == nil {
		log = observability.Nop()
	}
	m := observability.NewMetrics()
	reg, err := registry.New(registry.Options{
		DataDir: cfg.DataDir,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	reg.Reload()

	cats, err := catalog.NewManager(catalog.Options{
		CacheDir:     cfg.CacheDir,
		FetchTimeout: cfg.Catalog.FetchTimeout,
		Logger:       log,
		Metrics:      m,
	})
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}

	svc := service.New(reg, service.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Workers:      cfg.Search.Workers,
		Parallelism:  cfg.Search.Parallelism,
		Logger:       log,
		Metrics:      m,
	})
	return &App{
		Config:   cfg,
		Log:      log,
		Metrics:  m,
		Registry: reg,
		Service:  svc,
		Catalogs: cats,
	}, nil
}

func (a *App) Close() error {
	a.Service.Close()
	return a.Registry.Close()
}

// PreloadCatalogs loads the configured catalog sources. Failures are logged.
func (a *App) PreloadCatalogs(ctx context.Context) {
	for _, src := range a.Config.Catalog.Sources {
		if _, err := a.Catalogs.Load(ctx, src, false); err != nil {
			a.Log.Warn("catalog preload failed", "source", src, "error", err)
		}
	}
}

// Serve runs the bridge until ctx is cancelled, then shuts it down within the
// configured timeout. ready, if not nil, receives the bound address.
func (a *App) Serve(ctx context.Context, ready func(addr string)) error {
	h := httpx.NewRouter(httpx.Options{
		Service:   a.Service,
		Installed: a.Registry,
		Logger:    a.Log,
		Metrics:   a.Metrics,
	})
	srv, err := httpx.Listen(a.Config.Listen, h, a.Config.ReadTimeout, a.Config.WriteTimeout, a.Log)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(srv.Addr())
	}
	go a.PreloadCatalogs(ctx)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-time.After(a.Config.ShutdownTimeout):
		return nil
	}
}
