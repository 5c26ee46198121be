package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"ticketing-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders        *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher over the order-events and
// notification-requests topics.
func NewEventPublisher(orders, notifications *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, notifications: notifications}
}

// PublishOrderConfirmed publishes OrderConfirmed to the order topic
func (ep *EventPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishOrderCanceled publishes OrderCanceled to the order topic
func (ep *EventPublisher) PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishPaymentCaptured publishes PaymentCaptured to the order topic
func (ep *EventPublisher) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishPaymentDeclined publishes PaymentDeclined to the order topic
func (ep *EventPublisher) PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishNotificationRequested publishes a delivery request to the
// notification topic. Delivery is best-effort end to end.
func (ep *EventPublisher) PublishNotificationRequested(ctx context.Context, event *models.NotificationRequestedEvent) error {
	return ep.notifications.PublishEvent(ctx, event.Recipient, event)
}

// NotificationHandler routes notification-topic messages to a delivery
// callback registered by the worker.
type NotificationHandler struct {
	onRequest func(context.Context, *models.NotificationRequestedEvent) error
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

// OnRequest registers the delivery callback
func (nh *NotificationHandler) OnRequest(handler func(context.Context, *models.NotificationRequestedEvent) error) {
	nh.onRequest = handler
}

// HandleMessage decodes and dispatches one message
func (nh *NotificationHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.NotificationRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal notification request: %w", err)
	}
	if event.EventType != models.EventTypeNotificationRequested || nh.onRequest == nil {
		return nil
	}
	return nh.onRequest(ctx, &event)
}
