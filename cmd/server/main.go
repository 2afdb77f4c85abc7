package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harshitk-cp/paper-agent/internal/api"
	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/buildconfig"
	"github.com/Harshitk-cp/paper-agent/internal/config"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	components, err := app.Build(ctx, app.OptionsFromEnv(), logger)
	if err != nil {
		var lerr *config.LoadError
		if errors.As(err, &lerr) {
			logger.Fatal("invalid agent config", zap.String("agent", lerr.Agent), zap.String("path", lerr.Path), zap.Error(lerr.Err))
		}
		logger.Fatal("failed to build engine", zap.Error(err))
	}
	defer func() { _ = components.Close() }()

	if err := components.Catalog.CheckIntegrity(ctx); err != nil {
		logger.Warn("concept catalog integrity check failed", zap.Error(err))
	}

	a := api.NewApp(components, api.Limits{RPS: config.RateLimitRPS(), Burst: config.RateLimitBurst()}, logger)
	defer a.Close()

	janitor := service.NewJanitorService(components.Engine, components.Bus, config.SessionTTL(), logger)
	janitor.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("build", buildconfig.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	janitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
