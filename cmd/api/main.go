package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/adforge/internal/api"
	"github.com/bobarin/adforge/internal/app"
	"github.com/bobarin/adforge/internal/config"
	"github.com/bobarin/adforge/internal/db"
	"github.com/bobarin/adforge/internal/pipeline"
	"github.com/bobarin/adforge/internal/queue"
	"github.com/bobarin/adforge/internal/services"
	"github.com/bobarin/adforge/internal/storage"
	"github.com/bobarin/adforge/internal/telemetry"
	"github.com/bobarin/adforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry.SetupLogging(os.Stdout, cfg.LogLevel)
	slog.Info("starting adforge api", "port", cfg.APIPort, "runs_dir", cfg.RunsDir)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(rootCtx, cfg.ServiceName, cfg.OtelStdoutEnabled)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	var finalizers []pipeline.Finalizer

	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.EnsureSchema(rootCtx); err != nil {
			slog.Error("failed to prepare database", "error", err)
			os.Exit(1)
		}
		finalizers = append(finalizers, db.NewArchiver(database))
		slog.Info("run archive enabled")
	}

	var publisher *storage.Publisher
	if cfg.SupabaseURL != "" {
		stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		publisher = storage.NewPublisher(stor, cfg.RunsDir)
		finalizers = append(finalizers, publisher)
		slog.Info("supabase publishing enabled", "bucket", cfg.SupabaseStorageBucket)
	}

	built, err := app.Build(rootCtx, cfg, finalizers...)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	ffmpegOK, ffprobeOK := built.FFmpeg.Available()
	slog.Info("pipeline ready", "engines", built.Engines, "ffmpeg", ffmpegOK, "ffprobe", ffprobeOK)

	var dispatcher worker.Dispatcher
	var local *worker.LocalDispatcher
	if cfg.RedisURL != "" {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to queue", "error", err)
			os.Exit(1)
		}
		defer q.Close()
		dispatcher = worker.NewQueueDispatcher(q)

		w := worker.New(q, built.Orchestrator)
		go w.Start(rootCtx, cfg.MaxConcurrentRuns)
		slog.Info("dispatching runs through redis", "queue", queue.QueueRenderAd)
	} else {
		local = worker.NewLocalDispatcher(rootCtx, built.Orchestrator, cfg.MaxConcurrentRuns)
		dispatcher = local
	}

	var links api.DownloadLinker
	if publisher != nil {
		links = publisher
	}
	handler := api.NewHandler(built.Orchestrator, dispatcher, links, built.FFmpeg, func() bool {
		_, err := services.LocateEspeak()
		return err == nil
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey == "" {
		slog.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("api server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	stop()
	if local != nil {
		local.Wait()
	}

	slog.Info("server exited")
}
