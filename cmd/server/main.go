package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/config"
	"github.com/SAP-F-2025/exam-attempt-service/internal/handlers"
	"github.com/SAP-F-2025/exam-attempt-service/internal/lock"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/memory"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
	"github.com/SAP-F-2025/exam-attempt-service/internal/worker"
	"github.com/SAP-F-2025/exam-attempt-service/pkg"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.NewLogger("development").Error("Failed to load config", "error", err)
		return err
	}

	logger := utils.NewLogger(cfg.Environment)
	slogger := logger.Slog()
	logger.Info("Starting exam attempt service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage", cfg.StorageDriver,
		"lock", cfg.LockDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Storage, cache and locks ──────────────────────────────────────
	var (
		repo   repositories.Repository
		locker lock.Locker = lock.NewKeyedMutex()
	)

	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Using in-memory storage; attempts are lost on restart")
		repo = memory.NewStore()
	default:
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			logger.LogError(err, "Failed to connect to database")
			return err
		}
		if err := pkg.Migrate(db); err != nil {
			logger.LogError(err, "Failed to migrate database")
			return err
		}

		redisClient, err := pkg.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.LogError(err, "Failed to connect to Redis")
			return err
		}
		defer redisClient.Close()

		repo = postgres.NewRepository(db, cache.NewRedisCache(redisClient, slogger), cfg.CacheTTL)
		if cfg.LockDriver == "redis" {
			locker = cache.NewRedisLocker(redisClient, cfg.LockTTL, slogger)
		}
	}
	defer repo.Close()

	if !cfg.ReplicaSafeLocks() {
		logger.Warn("Local attempt locks only serialise this process; set LOCK_DRIVER=redis when running more than one replica")
	}

	// ─── Events ────────────────────────────────────────────────────────
	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.LogError(err, "Failed to create event publisher")
		return err
	}
	defer publisher.Close()

	// ─── Services and transport ────────────────────────────────────────
	attemptService := services.NewAttemptService(
		repo,
		locker,
		publisher,
		validator.New(),
		slogger,
		services.WithAutosaveInterval(cfg.AutosaveInterval),
	)

	routerConfig := handlers.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Health:         repo,
	}
	if cfg.Casdoor.Enabled() {
		routerConfig.Auth = handlers.AuthMiddleware(handlers.NewCasdoorAuthenticator(cfg.Casdoor))
	} else {
		logger.Warn("Casdoor is not configured; trusting X-User-ID and X-User-Role headers")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewHandlerManager(attemptService, logger, routerConfig).NewRouter()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := worker.NewTimeoutSweeper(attemptService, cfg.TimeoutSweepInterval, cfg.TimeoutGrace, cfg.TimeoutBatchSize, slogger)

	// ─── Run until signalled ───────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.LogError(err, "Server stopped with error")
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
