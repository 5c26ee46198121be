package models

import "time"

// Event types
const (
	EventTypeOrderConfirmed        = "ORDER_CONFIRMED"
	EventTypeOrderCanceled         = "ORDER_CANCELED"
	EventTypePaymentCaptured       = "PAYMENT_CAPTURED"
	EventTypePaymentDeclined       = "PAYMENT_DECLINED"
	EventTypeNotificationRequested = "NOTIFICATION_REQUESTED"
)

// Notification kinds
const (
	NotifyOrderConfirmation = "ORDER_CONFIRMATION"
	NotifyOrderCancellation = "ORDER_CANCELLATION"
)

// Notification channels
const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent is published after payment capture, seat allocation
// and ticket issuance all succeeded.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID    int64   `json:"order_id"`
	UserID     int64   `json:"user_id"`
	EventRefID int64   `json:"event_ref_id"`
	OrderTotal float64 `json:"order_total"`
	SeatIDs    []int64 `json:"seat_ids"`
}

// OrderCanceledEvent is published after compensation or an explicit cancel.
type OrderCanceledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason"`
}

// PaymentCapturedEvent is published when a charge settles SUCCESS.
type PaymentCapturedEvent struct {
	BaseEvent
	OrderID   int64   `json:"order_id"`
	PaymentID int64   `json:"payment_id"`
	Amount    float64 `json:"amount"`
	TxID      string  `json:"tx_id"`
}

// PaymentDeclinedEvent is published when a charge settles FAILED.
type PaymentDeclinedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Reason    string `json:"reason"`
}

// NotificationRequestedEvent is the fire-and-forget delivery request
// consumed by the notification worker.
type NotificationRequestedEvent struct {
	BaseEvent
	Kind      string `json:"kind"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
