// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"medlens/internal/app"
	"medlens/internal/common/camunda"
	"medlens/internal/common/config"
	"medlens/internal/common/logger"
	"medlens/internal/common/observability"

	ad "medlens/internal/workers/analysis/analyze-document"
	ci "medlens/internal/workers/analysis/check-interactions"
	slr "medlens/internal/workers/analysis/save-last-result"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	obs := observability.New("medlens-worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = app.RetryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Pipeline and backends ---
	components, err := app.Build(ctx, cfg, zapLog, obs)
	if err != nil {
		zapLog.Fatal("pipeline setup failed", zap.Error(err))
	}
	defer components.Close()

	client := zeebe.GetClient()
	var workers []worker.JobWorker

	if wcfg := config.GetWorkerConfig(cfg, ad.TaskType); wcfg.Enabled {
		handler := ad.NewHandler(&ad.Config{Timeout: config.GetDuration(wcfg.Timeout)}, components.Pipeline, log)
		workers = append(workers, startWorker(client, ad.TaskType, wcfg, handler.Handle, zapLog))
	}

	if wcfg := config.GetWorkerConfig(cfg, ci.TaskType); wcfg.Enabled {
		handler := ci.NewHandler(&ci.Config{Timeout: config.GetDuration(wcfg.Timeout)}, components.Pipeline, log)
		workers = append(workers, startWorker(client, ci.TaskType, wcfg, handler.Handle, zapLog))
	}

	if wcfg := config.GetWorkerConfig(cfg, slr.TaskType); wcfg.Enabled {
		handler := slr.NewHandler(&slr.Config{Timeout: config.GetDuration(wcfg.Timeout)}, components.Store, log)
		workers = append(workers, startWorker(client, slr.TaskType, wcfg, handler.Handle, zapLog))
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ready", "time": time.Now().Format(time.RFC3339)}
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "not_ready"
			body["zeebe"] = err.Error()
		}
		for name, check := range components.Checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "not_ready"
				body[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) worker.JobWorker {
	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return jobWorker
}
