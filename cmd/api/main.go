package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"correspondence/internal/bootstrap"
	"correspondence/internal/config"
	"correspondence/internal/httpapi"
	"correspondence/internal/httpserver"
	"correspondence/internal/logging"
	"correspondence/internal/observability"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := bootstrap.Build(ctx, bootstrap.Config{
		DB:             cfg.DBConfig,
		AWS:            cfg.AWSConfig,
		Redis:          cfg.RedisConfig,
		External:       cfg.ExternalConfig,
		Lock:           cfg.LockConfig,
		ConfirmTimeout: cfg.ConfirmPatchTimeout,
	})
	if err != nil {
		slog.Error("api init failed", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	observability.Register(prometheus.DefaultRegisterer)

	s := httpserver.New()
	api := &httpserver.API{
		Svc:    c.Service,
		Sweeps: c.Sweeper,
		Jobs:   c.Scheduler,
	}
	api.Register(s.Mux)
	(&httpserver.NotificationCondition{Store: c.Store}).Register(s.Mux)

	s.Mux.Handle("/metrics", promhttp.Handler())
	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, c.ReadyChecks()...))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
