package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/api"
	"github.com/prudhvinik1/whatsnote/internal/config"
	"github.com/prudhvinik1/whatsnote/internal/database"
	"github.com/prudhvinik1/whatsnote/internal/hub"
	"github.com/prudhvinik1/whatsnote/internal/migrate"
	"github.com/prudhvinik1/whatsnote/internal/repositories"
	"github.com/prudhvinik1/whatsnote/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create postgres pool", zap.Error(err))
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// Repositories
	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	deviceRepo := repositories.NewPostgresDeviceRepository(postgresPool)
	eventRepo := repositories.NewPostgresEventRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient)
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient)

	// Push fan-out hub and services
	pushHub := hub.New(logger)
	authService := services.NewAuthService(accountRepo, deviceRepo, sessionRepo, cfg.JWTSecret, cfg.SessionTTL)
	eventService := services.NewEventService(eventRepo, pushHub, logger)

	apiServer := api.NewServer(authService, eventService, pushHub, presenceRepo, deviceRepo, cfg.KeepAliveInterval, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: apiServer.Router(),
	}

	// graceful shutdown: drain the push hub first so connected devices see a
	// clean disconnect instead of a timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		pushHub.Drain()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.ServerPort))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}
