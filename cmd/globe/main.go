package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/api"
	"github.com/vsr83/WebGLGlobeTest/internal/cache"
	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/config"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/observability"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"github.com/vsr83/WebGLGlobeTest/internal/stream"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"github.com/vsr83/WebGLGlobeTest/web"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default $GLOBE_CONFIG)")
	textureDir := flag.String("textures", "", "directory served under /textures/")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	store := catalog.NewStore()
	cat, err := catalog.Load(ctx, cfg.Catalog, logger)
	if err != nil {
		logger.Error("catalog load failed", "error", err)
		os.Exit(1)
	}
	store.Set(cat)
	logger.Info("catalog loaded", "source", cat.Source, "objects", len(cat.Objects))

	prop := propagation.NewPropagator(store, cfg.Propagation, logger)
	metrics.SetPropagationWorkersActive(cfg.Propagation.Workers)

	kfCache := cache.NewKeyframeCache(cfg.Cache, prop, store, logger)
	builder := scene.NewBuilder(prop, kfCache, cfg.Globe, scene.DefaultTextures, logger)
	streamHandler := stream.NewHandler(builder, store, cfg.Stream, logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, cfg.Auth, api.Deps{
		Store:      store,
		Propagator: prop,
		Builder:    builder,
		Cache:      kfCache,
		Stream:     streamHandler,
		Observer:   transform.NewObserver(cfg.Observer.LatDeg, cfg.Observer.LonDeg, cfg.Observer.AltKm),
		Globe:      cfg.Globe,
		Web:        web.Content,
		TextureDir: *textureDir,
	})

	// Start cache background worker.
	go kfCache.Start(ctx)

	if cfg.CatalogRefresh > 0 {
		go refreshCatalog(ctx, store, cfg.Catalog, cfg.CatalogRefresh, logger)
	}

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// refreshCatalog reloads the catalog every interval. A failed reload keeps
// the current catalog; the keyframe cache rebuilds when the store changes.
func refreshCatalog(ctx context.Context, store *catalog.Store, src catalog.Source, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cat, err := catalog.Load(ctx, src, logger)
			if err != nil {
				logger.Warn("catalog refresh failed, keeping current catalog", "error", err)
				continue
			}
			store.Set(cat)
			logger.Info("catalog refreshed", "source", cat.Source, "objects", len(cat.Objects))
		}
	}
}
