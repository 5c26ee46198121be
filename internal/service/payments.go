package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the persistence contract of the ledger. InsertPayment
// must enforce reference uniqueness at the point of insertion, so that
// concurrent duplicates with one key collapse to exactly one row.
type PaymentStore interface {
	InsertPayment(ctx context.Context, payment *models.Payment) (created bool, err error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	MarkPaymentRefunded(ctx context.Context, paymentID int64) error
}

// ChargeRequest describes one logical charge attempt.
type ChargeRequest struct {
	OrderID        int64
	Amount         float64
	Method         string
	IdempotencyKey string
}

// ChargeDecider decides the outcome of a first-time charge. Production uses
// a success-rate simulation; tests inject fixed outcomes so the saga is
// deterministic.
type ChargeDecider func(req ChargeRequest) string

// RateDecider approves charges with the given probability.
func RateDecider(successRate float64) ChargeDecider {
	return func(ChargeRequest) string {
		if rand.Float64() < successRate {
			return models.PaymentSuccess
		}
		return models.PaymentFailed
	}
}

// PaymentLedger owns payment attempts keyed by idempotency reference.
type PaymentLedger struct {
	store   PaymentStore
	decider ChargeDecider
	events  EventSink
	logger  *zap.Logger
}

// NewPaymentLedger creates a new payment ledger
func NewPaymentLedger(store PaymentStore, decider ChargeDecider, events EventSink) *PaymentLedger {
	return &PaymentLedger{
		store:   store,
		decider: decider,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// Charge executes a charge with at-most-one-effect semantics per key. A
// repeated key returns the original record verbatim, whatever its outcome;
// a FAILED attempt can only be retried under a fresh key.
func (pl *PaymentLedger) Charge(ctx context.Context, req ChargeRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentLedger.Charge")
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, fault.ErrMissingIdempotencyKey
	}

	util.PaymentAttemptsTotal.Inc()

	existing, err := pl.store.GetPaymentByReference(ctx, req.IdempotencyKey)
	if err == nil {
		util.PaymentReplaysTotal.Inc()
		pl.logger.Info("Replaying payment for known reference",
			zap.String("reference", req.IdempotencyKey),
			zap.Int64("payment_id", existing.PaymentID))
		return existing, nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return nil, asDependencyErr("look up payment", err)
	}

	status := pl.decider(req)
	payment := &models.Payment{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    status,
		Reference: req.IdempotencyKey,
	}
	if status == models.PaymentSuccess {
		payment.TxID = fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
	}

	created, err := pl.store.InsertPayment(ctx, payment)
	if err != nil {
		return nil, asDependencyErr("persist payment", err)
	}
	if !created {
		// A concurrent duplicate won the reference; its record is the
		// outcome of this logical attempt.
		util.PaymentReplaysTotal.Inc()
		return payment, nil
	}

	pl.settle(ctx, payment)
	return payment, nil
}

// Lookup returns the payment recorded under a reference, if any.
func (pl *PaymentLedger) Lookup(ctx context.Context, reference string) (*models.Payment, error) {
	return pl.store.GetPaymentByReference(ctx, reference)
}

// Refund transitions a SUCCESS payment to REFUNDED.
func (pl *PaymentLedger) Refund(ctx context.Context, paymentID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentLedger.Refund")
	defer span.End()

	if err := pl.store.MarkPaymentRefunded(ctx, paymentID); err != nil {
		if errors.Is(err, fault.ErrInvalidState) || errors.Is(err, fault.ErrNotFound) {
			return nil, err
		}
		return nil, asDependencyErr("refund payment", err)
	}

	util.PaymentRefundsTotal.Inc()
	pl.logger.Info("Payment refunded", zap.Int64("payment_id", paymentID))
	return pl.store.GetPaymentByID(ctx, paymentID)
}

func (pl *PaymentLedger) settle(ctx context.Context, payment *models.Payment) {
	if payment.Status == models.PaymentSuccess {
		util.PaymentSuccessTotal.Inc()
		pl.logger.Info("Payment captured",
			zap.Int64("order_id", payment.OrderID),
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("tx_id", payment.TxID))

		event := &models.PaymentCapturedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentCaptured),
			OrderID:   payment.OrderID,
			PaymentID: payment.PaymentID,
			Amount:    payment.Amount,
			TxID:      payment.TxID,
		}
		if err := pl.events.PublishPaymentCaptured(ctx, event); err != nil {
			pl.logger.Error("Failed to publish PaymentCaptured event", zap.Error(err))
		}
		return
	}

	util.PaymentFailedTotal.Inc()
	pl.logger.Warn("Payment declined", zap.Int64("order_id", payment.OrderID))

	event := &models.PaymentDeclinedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentDeclined),
		OrderID:   payment.OrderID,
		PaymentID: payment.PaymentID,
		Reason:    "card_declined",
	}
	if err := pl.events.PublishPaymentDeclined(ctx, event); err != nil {
		pl.logger.Error("Failed to publish PaymentDeclined event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
