package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/api"
	"github.com/jengzang/forestwatch-backend-go/internal/config"
	"github.com/jengzang/forestwatch-backend-go/internal/database"
	"github.com/jengzang/forestwatch-backend-go/internal/editor"
	"github.com/jengzang/forestwatch-backend-go/internal/middleware"
	"github.com/jengzang/forestwatch-backend-go/internal/repository"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/telemetry"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
	"github.com/jengzang/forestwatch-backend-go/internal/upstream"
)

func main() {
	cfg := config.Load()

	// Database
	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	db := database.GetDB()

	tracker := telemetry.New(cfg.PostHogKey, cfg.PostHogHost)
	defer tracker.Close()

	client := upstream.NewClient(cfg.UpstreamURL, cfg.HTTPTimeout)
	tileClient := &http.Client{Timeout: cfg.TileTimeout, Transport: client.HTTPClient().Transport}
	tileBase := cfg.TileServerURL
	if cfg.TileProxy {
		tileBase = cfg.UpstreamURL
	}

	ws, err := service.NewWorkspace(service.WorkspaceOptions{
		ReportID:  cfg.ReportID,
		Operation: cfg.Operation,
		AddedBy:   cfg.AddedBy,
		Remote:    client,
		Cells:     repository.NewCellRepository(db),
		Polygons:  repository.NewPolygonRepository(db),
		Profiles:  repository.NewThresholdRepository(db),
		Fetcher:   tiles.NewFetcher(tileClient, tileBase, cfg.TileProxy),
		Tracker:   tracker,
		Tiles: tiles.Options{
			Watchdog:  cfg.TileTimeout,
			CacheSize: cfg.TileCacheSize,
		},
		Editor: editor.Options{
			Retry:       editor.DefaultRetryStrategy(),
			SaveTimeout: cfg.HTTPTimeout,
		},
		RemoteTimeout: cfg.HTTPTimeout,
	})
	if err != nil {
		log.Fatal("Failed to create workspace:", err)
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TileSensor != "" {
		authCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
		if err := ws.AuthorizeSensors(authCtx, cfg.TileSensor, nil); err != nil {
			log.Printf("[Tiles] startup authorization for %s failed: %v", cfg.TileSensor, err)
		}
		cancel()
	}

	syncer := service.NewSyncService(ws)
	go syncer.Run(ctx, cfg.SyncInterval)

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: api.SetupRouter(cfg, ws, syncer, limiter),
	}

	go func() {
		log.Printf("Server starting on port %s (report %s, operation %s)", cfg.Port, cfg.ReportID, cfg.Operation)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
