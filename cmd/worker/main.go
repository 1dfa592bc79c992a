package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"correspondence/internal/bootstrap"
	"correspondence/internal/config"
	"correspondence/internal/httpapi"
	"correspondence/internal/jobs"
	"correspondence/internal/logging"
	"correspondence/internal/notification"
	"correspondence/internal/observability"
	"correspondence/internal/providers/notifications"
	sqsqueue "correspondence/internal/queue/sqs"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bcfg := bootstrap.Config{
		DB:             cfg.DBConfig,
		AWS:            cfg.AWSConfig,
		Redis:          cfg.RedisConfig,
		External:       cfg.ExternalConfig,
		Lock:           cfg.LockConfig,
		ConfirmTimeout: cfg.ConfirmPatchTimeout,
	}
	c, err := bootstrap.Build(ctx, bcfg)
	if err != nil {
		slog.Error("worker init failed", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	err = httpapi.CheckAll(startupCtx, c.ReadyChecks()...)
	startupCancel()
	if err != nil {
		slog.Error("dependency not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	orchestrator := notification.New(
		c.Store,
		notifications.New(bcfg.HTTPClient("notifications", cfg.NotificationBaseURL)),
		c.Parties,
		c.Scheduler,
		c.Events,
		notification.Options{
			SendDelay:           cfg.NotificationSendDelay,
			ReminderDelay:       cfg.ReminderDelay,
			DeliveryCheckDelay:  cfg.DeliveryCheckDelay,
			DeliveryCheckWindow: cfg.DeliveryCheckWindow,
			ConditionBaseURL:    cfg.PublicBaseURL,
			DefaultLanguage:     cfg.DefaultLanguage,
		},
	)

	runner := jobs.NewRunner(c.Store, cfg.MaxAttempts, cfg.StaleAfter)
	c.Dialogs.Register(runner)
	c.Service.Register(runner)
	c.Sweeper.Register(runner)
	orchestrator.Register(runner)

	dispatcher := jobs.NewDispatcher(c.Store, c.Producer, cfg.PollInterval, cfg.BatchSize)

	consumer := &sqsqueue.Consumer{
		SQS: c.SQS, QueueURL: cfg.JobQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	ops := httpapi.New(httpapi.Options{Jobs: c.Store, Checks: c.ReadyChecks()})
	opsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           ops.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker ops listening", "port", cfg.Port)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return opsSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		slog.Info("worker starting poll", "queue_url", cfg.JobQueueURL, "concurrency", cfg.WorkerConcurrency)
		return consumer.PollConcurrent(gctx, cfg.WorkerConcurrency, runner.Handle)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "err", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
