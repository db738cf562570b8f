package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/archivist/internal/adapters/http"
	"github.com/kirillkom/archivist/internal/bootstrap"
	"github.com/kirillkom/archivist/internal/config"
	"github.com/kirillkom/archivist/internal/observability/logging"
	"github.com/kirillkom/archivist/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(
		app.IngestUC,
		app.VersionUC,
		app.AccessUC,
		app.AccessUC,
		app.AccessUC,
		app.RelationsUC,
		httpadapter.Options{
			UploadRateLimitRPS:   cfg.APIRateLimitRPS,
			UploadRateLimitBurst: cfg.APIRateLimitBurst,
			MaxUploadBytes:       cfg.MaxUploadBytes,
			MaxInFlightRequests:  cfg.APIMaxInFlight,
			Metrics:              httpMetrics,
			Service:              "api",
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
