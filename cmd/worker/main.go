package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/archivist/internal/bootstrap"
	"github.com/kirillkom/archivist/internal/config"
	"github.com/kirillkom/archivist/internal/observability/logging"
	"github.com/kirillkom/archivist/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app.StageRetrier.OnResult(func(stage string, duration time.Duration, err error) {
		workerMetrics.ObserveStage(service, stage, duration, err)
	})
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go runRetentionSweeper(ctx, app)

	processTimeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeVersionCommitted(ctx, func(handlerCtx context.Context, documentID string, version int) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if v, lookupErr := app.Repo.GetVersion(processCtx, documentID, version); lookupErr == nil {
			workerMetrics.ObserveQueueLag(service, time.Since(v.CreatedAt))
		}

		workerMetrics.StartVersion()
		start := time.Now()
		processErr := app.ProcessUC.ProcessVersion(processCtx, documentID, version)
		workerMetrics.FinishVersion(service, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// runRetentionSweeper deletes released blobs whose retention grace has
// passed. The sweep is idempotent, so overlapping workers are safe.
func runRetentionSweeper(ctx context.Context, app *bootstrap.App) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			removed, err := app.Store.SweepExpired(sweepCtx, time.Now().UTC())
			cancel()
			if err != nil {
				slog.Warn("retention_sweep_failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("retention_sweep_completed", "removed", removed)
			}
		}
	}
}
