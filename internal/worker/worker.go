package worker

import (
	"context"
	"log"
	"time"

	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes the notification topic and delivers each
// request through its channel sender. Delivery failure is absorbed here:
// the message is counted and dropped, never redelivered to the saga.
type NotificationWorker struct {
	consumer *broker.Consumer
	handler  *broker.NotificationHandler
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, senders map[string]Sender) *NotificationWorker {
	logger := util.GetLogger()
	handler := broker.NewNotificationHandler()

	handler.OnRequest(func(ctx context.Context, event *models.NotificationRequestedEvent) error {
		sender, ok := senders[event.Channel]
		if !ok {
			logger.Warn("No sender for channel, dropping notification",
				zap.String("channel", event.Channel))
			return nil
		}
		if err := sender.Deliver(ctx, event); err != nil {
			util.NotificationsFailedTotal.WithLabelValues(event.Channel).Inc()
			logger.Error("Notification delivery failed",
				zap.String("channel", event.Channel),
				zap.String("recipient", event.Recipient),
				zap.Error(err))
		}
		return nil
	})

	return &NotificationWorker{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

// RecoveryWorker periodically sweeps stalled sagas to a terminal step.
type RecoveryWorker struct {
	orchestrator *service.SagaOrchestrator
	interval     time.Duration
	logger       *zap.Logger
}

// NewRecoveryWorker creates a new recovery worker
func NewRecoveryWorker(orchestrator *service.SagaOrchestrator, interval time.Duration) *RecoveryWorker {
	return &RecoveryWorker{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       util.GetLogger(),
	}
}

// Start runs the sweep until the context is canceled
func (rw *RecoveryWorker) Start(ctx context.Context) error {
	log.Println("Starting saga recovery worker...")

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := rw.orchestrator.RecoverStalled(ctx); err != nil {
				rw.logger.Error("Saga recovery sweep failed", zap.Error(err))
			}
		}
	}
}
