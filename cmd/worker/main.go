package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/feedback-cascade/internal/bootstrap"
	"github.com/kirillkom/feedback-cascade/internal/config"
	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	worker := app.Worker()

	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      worker.Metrics.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.ScoringEnabled {
		group.Go(func() error {
			logger.Info("scoring_loop_started", "interval", cfg.ScoringInterval.String())
			return worker.Scheduler.Run(groupCtx)
		})
	} else {
		logger.Info("scoring_loop_disabled")
	}

	group.Go(func() error {
		logger.Info("webhook_dispatcher_subscribed", "subject", cfg.NATSSubject)
		return app.Queue.SubscribeReviewPending(groupCtx, func(handlerCtx context.Context, event domain.ReviewPendingEvent) error {
			dispatchCtx, cancel := context.WithTimeout(handlerCtx, cfg.WebhookDeliveryTimeout+5*time.Second)
			defer cancel()
			return worker.Dispatcher.Dispatch(dispatchCtx, event)
		})
	})

	group.Go(func() error {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("worker_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
