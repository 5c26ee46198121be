package service

import (
	"context"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// EventSink receives the domain events the saga and the ledger emit.
// Publish failures are logged by the caller and never affect the workflow;
// the database is the source of truth.
type EventSink interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error
	PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error
	PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error
	PublishNotificationRequested(ctx context.Context, event *models.NotificationRequestedEvent) error
}

// Notifier accepts fire-and-forget delivery requests. Failures are
// absorbed by callers; a lost notification never rolls back an order.
type Notifier interface {
	Send(ctx context.Context, kind, channel, recipient, subject, body string) error
}

// QueueNotifier hands delivery requests to the notification topic, where
// the notification worker picks them up.
type QueueNotifier struct {
	events EventSink
	logger *zap.Logger
}

// NewQueueNotifier creates a new queue-backed notifier
func NewQueueNotifier(events EventSink) *QueueNotifier {
	return &QueueNotifier{events: events, logger: util.GetLogger()}
}

// Send enqueues one delivery request
func (qn *QueueNotifier) Send(ctx context.Context, kind, channel, recipient, subject, body string) error {
	event := &models.NotificationRequestedEvent{
		BaseEvent: newBaseEvent(models.EventTypeNotificationRequested),
		Kind:      kind,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	}
	return qn.events.PublishNotificationRequested(ctx, event)
}
