package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Luckywi/EcoLyon-sub001/internal/api"
	"github.com/Luckywi/EcoLyon-sub001/internal/config"
	"github.com/Luckywi/EcoLyon-sub001/internal/geocode"
	"github.com/Luckywi/EcoLyon-sub001/internal/location"
	"github.com/Luckywi/EcoLyon-sub001/internal/logging"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
	"github.com/Luckywi/EcoLyon-sub001/internal/proximity"
	"github.com/Luckywi/EcoLyon-sub001/internal/refresh"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// One shared full-dataset registry, one loader per dataset.
	registry := proximity.NewGlobalCacheRegistry(cfg.Cache.GlobalTTL)
	httpClient := &http.Client{Timeout: 15 * time.Second}

	loaders := make(map[string]api.NearbyLoader)
	targets := make(map[string]refresh.Refresher)
	for id, dataset := range models.DefaultDatasets() {
		if override := config.DatasetURL(id); override != "" {
			dataset.APIURL = override
		}
		loader := proximity.NewLoaderWithPolicy(dataset, registry, httpClient,
			cfg.Cache.ZoneTTL, cfg.Cache.ZoneTolerance)
		loaders[id] = loader
		targets[id] = loader
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mgr *refresh.Manager
	if cfg.Refresh.Enabled {
		mgr = refresh.NewManager(refresh.Config{
			Interval:    cfg.Refresh.Interval,
			WorkerCount: cfg.Refresh.WorkerCount,
			BufferSize:  cfg.Refresh.BufferSize,
		}, targets)
		mgr.Start(ctx)
	}

	var provider *location.Provider
	if cfg.Location.Enabled {
		provider = location.NewProvider(location.Config{
			Fallback:          cfg.Fallback(),
			FallbackWait:      cfg.Location.FallbackWait,
			MovementThreshold: cfg.Location.MovementThreshold,
			LiveFixTarget:     cfg.Location.LiveFixTarget,
			StopGrace:         cfg.Location.StopGrace,
		}, location.PassiveSource{})
		provider.Start()
		defer provider.Close()
	}

	resolver := geocode.NewResolver(geocode.NewBANClient(cfg.Geocode.Endpoint))

	var facts *api.FactsClient
	if cfg.Facts.URL != "" {
		facts = api.NewFactsClient(cfg.Facts.URL, cfg.Facts.Token)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RPS, cfg.Server.RPS*2))

	var snapshotter api.LocationSnapshotter
	if provider != nil {
		snapshotter = provider
	}
	handler := api.NewHandler(loaders, resolver, snapshotter, facts)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if mgr != nil {
		mgr.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
