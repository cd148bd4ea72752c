package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/grievance-portal/internal/api/http"
	"github.com/spec-kit/grievance-portal/internal/api/http/handlers"
	"github.com/spec-kit/grievance-portal/internal/app"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/persistence"
	"github.com/spec-kit/grievance-portal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer svc.Close()

	if cfg.Postgres.RunMigrations {
		if _, err := svc.Migrate(ctx, persistence.DefaultMigrationsDir); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(fiberApp, logger, svc.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, svc.Postgres, svc.Redis, svc.Metrics),
		Auth:           handlers.NewAuthHandler(svc.Auth),
		Issues:         handlers.NewIssuesHandler(svc.Issues),
		AuthMiddleware: auth.NewAuthMiddleware(svc.Auth.TokenManager(), svc.Employees),
	})

	sweeper := worker.NewSLAWorker(svc.Issues, svc.Redis.Cmdable(), cfg.Issue, logger)
	go sweeper.Run(ctx)

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
