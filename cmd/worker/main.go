package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/internal/database"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/internal/storage"
	"github.com/hugh/easy-diagrams/internal/tasks"
	"github.com/hugh/easy-diagrams/pkg/config"
	"github.com/hugh/easy-diagrams/pkg/queue"
	"github.com/hugh/easy-diagrams/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting easy-diagrams worker")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	mirror, err := storage.New(context.Background(), cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to set up image storage", "error", err)
		os.Exit(1)
	}

	renderer := diagrams.NewPlantUMLRenderer(cfg.Render, logger)
	renders := diagrams.NewRenderService(db, renderer, mirror, logger)

	srv := queue.NewServer(&cfg.Redis, 10)

	handler := tasks.NewHandler(renders, logger, cfg.Render.SweepBatch)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// The sweep picks up diagrams whose render was lost, e.g. when the
	// server enqueued nothing because Redis was down.
	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Render.SweepCron, tasks.NewRenderSweepTask(), asynq.Queue(tasks.QueueLow))
	if err != nil {
		logger.Error("failed to register render sweep", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Render.SweepCron, time.Now().UTC()); err == nil {
		logger.Info("render sweep scheduled", "entry_id", entryID, "cron", cfg.Render.SweepCron, "next_run", next)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	if c, ok := mirror.(io.Closer); ok {
		c.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
