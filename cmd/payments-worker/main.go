// cmd/payments-worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/rent-payments-poc/internal/app"
	"github.com/example/rent-payments-poc/internal/events"
	"github.com/example/rent-payments-poc/internal/notification"
	"github.com/example/rent-payments-poc/internal/payment"
	"github.com/example/rent-payments-poc/internal/sweeper"
	"github.com/example/rent-payments-poc/pkg/config"
)

// The worker runs the tenant notifier (Kafka consumer) and the pending
// sweeper side by side.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.MustLogger(cfg).Named("payments-worker")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, closeLedger, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open ledger", zap.Error(err))
	}
	defer closeLedger()

	pub, closePub := app.NewPublisher(cfg, logger)
	defer func() { _ = closePub() }()
	dispatcher := events.NewDispatcher(pub, cfg.Kafka.BufferSize, logger)
	defer func() { _ = dispatcher.Close(context.Background()) }()

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		var notifier notification.Notifier = notification.LogNotifier{Logger: logger}
		if cfg.Notify.WebhookURL != "" {
			notifier = notification.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		}
		svc := notification.NewService(notifier, logger)
		bus := events.NewBus(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID, logger)
		g.Go(func() error {
			logger.Info("notifier consuming", zap.String("topic", cfg.Kafka.EventsTopic), zap.String("group", cfg.Kafka.GroupID))
			return bus.Consume(ctx, svc.Handle)
		})
	} else {
		logger.Warn("no KAFKA_BROKERS, notifier disabled")
	}

	if err := cfg.Ledger.RequireShared(); err != nil {
		logger.Error("ledger not shared with api-gateway, sweeper disabled", zap.Error(err))
	} else if err := cfg.Gateway.ValidateGateway(); err != nil {
		logger.Warn("gateway not configured, sweeper disabled", zap.Error(err))
	} else {
		s := sweeper.New(l, app.NewGatewayClient(cfg, logger), payment.NewReconciler(l, dispatcher, logger), sweeper.Config{
			Interval: cfg.Sweeper.Interval,
			MinAge:   cfg.Sweeper.MinAge,
			Batch:    cfg.Sweeper.Batch,
		}, logger)
		g.Go(func() error { return s.Run(ctx) })
	}

	logger.Info("started")
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		return
	}
	logger.Info("bye")
}
