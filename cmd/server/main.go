package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/internal/api"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/database"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/internal/storage"
	"github.com/hugh/easy-diagrams/internal/tasks"
	"github.com/hugh/easy-diagrams/pkg/config"
	"github.com/hugh/easy-diagrams/pkg/crypto"
	"github.com/hugh/easy-diagrams/pkg/queue"
	"github.com/hugh/easy-diagrams/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "server")
	slog.SetDefault(logger)

	logger.Info("starting easy-diagrams server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"render_async", cfg.Render.Async,
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Redis backs the render queue. Without it edits render in-process.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	var (
		asynqClient *asynq.Client
		inspector   *asynq.Inspector
		dispatcher  diagrams.Dispatcher
	)
	if redisClient != nil {
		inspector = queue.NewInspector(&cfg.Redis)
		if cfg.Render.Async {
			asynqClient = queue.NewClient(&cfg.Redis)
			dispatcher = tasks.NewDispatcher(asynqClient, logger)
		}
	} else if cfg.Render.Async {
		logger.Warn("RENDER_ASYNC is set but Redis is unavailable, rendering in-process")
	}

	mirror, err := storage.New(context.Background(), cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to set up image storage", "error", err)
		os.Exit(1)
	}

	renderer := diagrams.NewPlantUMLRenderer(cfg.Render, logger)
	renders := diagrams.NewRenderService(db, renderer, mirror, logger)
	factory := diagrams.NewFactory(db, renders, dispatcher, logger)

	sealer, err := crypto.NewSealer(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create sealer", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - pending logins will fail after restart")
	}

	var providers []auth.Provider
	switch cfg.OAuth.Provider {
	case "google":
		providers = append(providers, auth.NewGoogleProvider(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.RedirectURL))
	case "dummy":
		if !cfg.Server.IsDevelopment() {
			logger.Warn("dummy login provider enabled outside development")
		}
		providers = append(providers, auth.DummyProvider{})
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, logger)

	done := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)
	go limiter.Run(done, time.Minute)
	csrfStore := middleware.NewCSRFStore()
	go csrfStore.Run(done, 10*time.Minute)

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Inspector:      inspector,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Sessions:       authService,
		Providers:      providers,
		Sealer:         sealer,
		Diagrams:       factory,
		RateLimiter:    limiter,
		CSRFStore:      csrfStore,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		SecureCookies:  !cfg.Server.IsDevelopment(),
	})

	// Render timeouts bound the write timeout for in-process rendering.
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.Render.Timeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	close(done)

	if asynqClient != nil {
		asynqClient.Close()
	}
	if inspector != nil {
		inspector.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if c, ok := mirror.(io.Closer); ok {
		c.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
