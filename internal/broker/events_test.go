package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ticketing-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationHandlerDispatches(t *testing.T) {
	handler := NewNotificationHandler()

	var got *models.NotificationRequestedEvent
	handler.OnRequest(func(ctx context.Context, event *models.NotificationRequestedEvent) error {
		got = event
		return nil
	})

	event := models.NotificationRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeNotificationRequested,
			Timestamp: time.Now(),
		},
		Kind:      models.NotifyOrderConfirmation,
		Channel:   models.ChannelEmail,
		Recipient: "user-7@example.com",
		Subject:   "Order Confirmation",
		Body:      "Your order 1 has been placed successfully.",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: payload})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ChannelEmail, got.Channel)
	assert.Equal(t, "user-7@example.com", got.Recipient)
}

func TestNotificationHandlerIgnoresForeignEvents(t *testing.T) {
	handler := NewNotificationHandler()

	called := false
	handler.OnRequest(func(ctx context.Context, event *models.NotificationRequestedEvent) error {
		called = true
		return nil
	})

	payload, err := json.Marshal(models.OrderCanceledEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCanceled},
		OrderID:   1,
	})
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: payload})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestNotificationHandlerRejectsMalformedPayload(t *testing.T) {
	handler := NewNotificationHandler()
	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{broken")})
	assert.Error(t, err)
}
