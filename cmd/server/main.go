// cmd/server/main.go
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

	"medlens/internal/api"
	"medlens/internal/app"
	"medlens/internal/common/config"
	"medlens/internal/common/logger"
	"medlens/internal/common/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting MedLens API server...", zap.String("version", cfg.App.Version))

	obs := observability.New("medlens-api")
	defer obs.Shutdown()

	ctx := context.Background()
	components, err := app.Build(ctx, cfg, zapLog, obs)
	if err != nil {
		zapLog.Fatal("pipeline setup failed", zap.Error(err))
	}
	defer components.Close()

	server := api.NewServer(api.Options{
		Runner:         components.Pipeline,
		Store:          components.Store,
		Logger:         log,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Version:        cfg.App.Version,
		Checks:         components.Checks,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}

	zapLog.Info("API server stopped gracefully")
}
