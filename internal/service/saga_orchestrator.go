package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the order/ticket persistence contract.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	SetOrderOutcome(ctx context.Context, orderID int64, status, paymentStatus string) error
	ConfirmOrderWithTickets(ctx context.Context, orderID int64, tickets []models.Ticket) error
	GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error)
}

// SagaLog persists the saga's current step so a crashed coordinator can be
// resumed or compensated, and keeps the reservation's seat ids for cancels
// that happen before any ticket exists.
type SagaLog interface {
	CreateSaga(ctx context.Context, saga *models.Saga) error
	UpdateSagaStep(ctx context.Context, sagaID string, orderID int64, step, lastError string) error
	GetSagaByOrderID(ctx context.Context, orderID int64) (*models.Saga, error)
	ListStalledSagas(ctx context.Context, cutoff time.Time) ([]models.Saga, error)
}

// Locker guards the recovery sweep across service instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Options tune the coordinator's remote-call policy and pricing.
type Options struct {
	TaxFactor   float64
	CallTimeout time.Duration
	CallRetries int
	StaleAfter  time.Duration
}

// SagaOrchestrator drives the order workflow across the seat store, the
// payment ledger and the order store, one strictly sequential chain of
// calls per order. It is the only component with cross-store causal
// knowledge; all inter-order coordination happens through the seat store's
// conditional transitions and the ledger's unique reference.
type SagaOrchestrator struct {
	seats    SeatStore
	ledger   *PaymentLedger
	orders   OrderStore
	sagas    SagaLog
	notifier Notifier
	events   EventSink
	locker   Locker
	opts     Options
	logger   *zap.Logger
}

// NewSagaOrchestrator creates a new saga orchestrator
func NewSagaOrchestrator(
	seats SeatStore,
	ledger *PaymentLedger,
	orders OrderStore,
	sagas SagaLog,
	notifier Notifier,
	events EventSink,
	locker Locker,
	opts Options,
) *SagaOrchestrator {
	if opts.TaxFactor == 0 {
		opts.TaxFactor = 1.05
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 5 * time.Second
	}
	return &SagaOrchestrator{
		seats:    seats,
		ledger:   ledger,
		orders:   orders,
		sagas:    sagas,
		notifier: notifier,
		events:   events,
		locker:   locker,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID         int64   `json:"user_id" binding:"required"`
	EventID        int64   `json:"event_id" binding:"required"`
	SeatIDs        []int64 `json:"seat_ids" binding:"required,min=1"`
	Method         string  `json:"method,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

func (r *CreateOrderRequest) validate() error {
	if r.UserID <= 0 || r.EventID <= 0 || len(r.SeatIDs) == 0 {
		return fmt.Errorf("user_id, event_id and seat_ids are required: %w", fault.ErrInvalidRequest)
	}
	seen := make(map[int64]struct{}, len(r.SeatIDs))
	for _, id := range r.SeatIDs {
		if id <= 0 {
			return fmt.Errorf("seat id %d is not valid: %w", id, fault.ErrInvalidRequest)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("seat id %d listed twice: %w", id, fault.ErrInvalidRequest)
		}
		seen[id] = struct{}{}
	}
	if r.Method == "" {
		r.Method = "CREDIT_CARD"
	}
	return nil
}

// OrderTotal is the sum of reservation-time seat prices times the tax
// factor, rounded to cents. It is computed once and never recomputed.
func OrderTotal(seats []models.Seat, taxFactor float64) float64 {
	var sum float64
	for _, seat := range seats {
		sum += seat.Price
	}
	return math.Round(sum*taxFactor*100) / 100
}

// CreateOrder runs the forward saga: reserve, charge, allocate, issue,
// notify. On reservation conflict it terminates with no side effects; on a
// decline or any hard failure after reservation it runs the compensating
// path and leaves the order CANCELED.
func (so *SagaOrchestrator) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, []models.Ticket, error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.CreateOrder")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	saga := &models.Saga{
		SagaID:         uuid.New().String(),
		UserID:         req.UserID,
		EventID:        req.EventID,
		SeatIDs:        req.SeatIDs,
		IdempotencyKey: key,
		Step:           models.SagaReserving,
	}
	if err := so.sagas.CreateSaga(ctx, saga); err != nil {
		return nil, nil, asDependencyErr("persist saga", err)
	}

	// Reserve. A transport failure here is ambiguous: the transaction may
	// have committed without us seeing the response. The retry's duplicate
	// attempt then reports a conflict, and the stalled-saga sweep releases
	// the orphaned hold. Only a definitive conflict with no transport
	// failure in any attempt may end the saga terminally, because the sweep
	// skips terminal steps.
	var seats []models.Seat
	var transportFailed bool
	err := so.call(ctx, "reserve", func(ctx context.Context) error {
		reserved, err := so.seats.Reserve(ctx, req.SeatIDs)
		if err != nil {
			if fault.Retryable(err) {
				transportFailed = true
			}
			return err
		}
		seats = reserved
		return nil
	})
	if err != nil {
		if transportFailed {
			so.step(ctx, saga, 0, models.SagaCompensating, "reserve_unsettled: "+err.Error())
		} else {
			so.step(ctx, saga, 0, models.SagaCanceled, err.Error())
		}
		if errors.Is(err, fault.ErrSeatUnavailable) {
			so.logger.Info("Reservation conflict",
				zap.String("saga_id", saga.SagaID),
				zap.Int64s("seat_ids", req.SeatIDs))
		}
		return nil, nil, err
	}

	total := OrderTotal(seats, so.opts.TaxFactor)
	order := &models.Order{
		UserID:        req.UserID,
		EventID:       req.EventID,
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		OrderTotal:    total,
	}
	if err := so.orders.CreateOrder(ctx, order); err != nil {
		so.releaseAndEnd(ctx, saga, 0, "order_create_failed: "+err.Error())
		return nil, nil, asDependencyErr("create order", err)
	}

	so.logger.Info("Order created",
		zap.Int64("order_id", order.OrderID),
		zap.Float64("order_total", total),
		zap.String("saga_id", saga.SagaID))
	so.step(ctx, saga, order.OrderID, models.SagaCharging, "")

	payment, err := so.charge(ctx, order, req.Method, key)
	if err != nil {
		so.cancelPending(ctx, saga, order, models.OrderPaymentFailed, "charge_failed: "+err.Error())
		return nil, nil, err
	}

	// Past the payment step the workflow runs to its next consistent
	// checkpoint even if the caller disconnects.
	ctx = context.WithoutCancel(ctx)

	if payment.OrderID != order.OrderID {
		// The caller reused a key whose payment belongs to another order.
		// Accepting the stale record would charge nothing for this order,
		// so the attempt is rejected and fully compensated.
		so.cancelPending(ctx, saga, order, models.OrderPaymentFailed, "idempotency key conflict")
		return nil, nil, fmt.Errorf("reference %q belongs to order %d: %w",
			key, payment.OrderID, fault.ErrKeyConflict)
	}

	if payment.Status != models.PaymentSuccess {
		so.cancelPending(ctx, saga, order, models.OrderPaymentFailed, "payment declined")
		return nil, nil, fmt.Errorf("payment %d declined: %w", payment.PaymentID, fault.ErrPaymentDeclined)
	}

	order, tickets, err := so.completeOrder(ctx, saga, order, payment, seats)
	if err != nil {
		return nil, nil, err
	}
	return order, tickets, nil
}

// charge runs the payment step. The idempotency reference makes it
// unconditionally retry-safe; if retries exhaust, one final ledger lookup
// distinguishes a charge that settled from one that never happened.
func (so *SagaOrchestrator) charge(ctx context.Context, order *models.Order, method, key string) (*models.Payment, error) {
	var payment *models.Payment
	err := so.call(ctx, "charge", func(ctx context.Context) error {
		p, err := so.ledger.Charge(ctx, ChargeRequest{
			OrderID:        order.OrderID,
			Amount:         order.OrderTotal,
			Method:         method,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err == nil {
		return payment, nil
	}
	if !fault.Retryable(err) {
		return nil, err
	}

	if settled, lookupErr := so.ledger.Lookup(ctx, key); lookupErr == nil {
		so.logger.Warn("Charge response lost in transit, recovered from ledger",
			zap.Int64("order_id", order.OrderID),
			zap.Int64("payment_id", settled.PaymentID))
		return settled, nil
	}
	return nil, err
}

// completeOrder runs allocation, ticket issuance and notification for an
// order whose payment settled SUCCESS. Shared with saga recovery, so every
// step tolerates being re-run.
func (so *SagaOrchestrator) completeOrder(ctx context.Context, saga *models.Saga, order *models.Order, payment *models.Payment, seats []models.Seat) (*models.Order, []models.Ticket, error) {
	so.step(ctx, saga, order.OrderID, models.SagaAllocating, "")

	err := so.call(ctx, "allocate", func(ctx context.Context) error {
		return so.seats.Allocate(ctx, saga.SeatIDs)
	})
	if err != nil {
		so.compensatePaid(ctx, saga, order, payment, false, "allocation_failed: "+err.Error())
		return nil, nil, err
	}

	so.step(ctx, saga, order.OrderID, models.SagaIssuing, "")

	tickets := make([]models.Ticket, 0, len(seats))
	for _, seat := range seats {
		tickets = append(tickets, models.Ticket{
			OrderID:   order.OrderID,
			EventID:   order.EventID,
			SeatID:    seat.SeatID,
			PricePaid: seat.Price,
		})
	}
	err = so.call(ctx, "issue", func(ctx context.Context) error {
		return so.orders.ConfirmOrderWithTickets(ctx, order.OrderID, tickets)
	})
	if err != nil {
		so.compensatePaid(ctx, saga, order, payment, true, "issuance_failed: "+err.Error())
		return nil, nil, asDependencyErr("issue tickets", err)
	}

	order.Status = models.OrderConfirmed
	order.PaymentStatus = models.OrderPaymentSuccess
	util.OrdersConfirmedTotal.Inc()
	util.TicketsIssuedTotal.Add(float64(len(tickets)))

	so.step(ctx, saga, order.OrderID, models.SagaNotifying, "")

	confirmed := &models.OrderConfirmedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		EventRefID: order.EventID,
		OrderTotal: order.OrderTotal,
		SeatIDs:    saga.SeatIDs,
	}
	if err := so.events.PublishOrderConfirmed(ctx, confirmed); err != nil {
		so.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}

	so.notify(ctx, models.NotifyOrderConfirmation, order,
		"Order Confirmation",
		fmt.Sprintf("Your order %d has been placed successfully.", order.OrderID))

	so.step(ctx, saga, order.OrderID, models.SagaDone, "")
	so.logger.Info("Order confirmed",
		zap.Int64("order_id", order.OrderID),
		zap.Int("tickets", len(tickets)))
	return order, tickets, nil
}

// CancelOrder cancels a PENDING order: release its seats, mark it
// CANCELED, fire a best-effort cancellation notice. CONFIRMED and CANCELED
// orders are terminal and cannot pass through here.
func (so *SagaOrchestrator) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.CancelOrder")
	defer span.End()

	order, err := so.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, err
		}
		return nil, asDependencyErr("load order", err)
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, fault.ErrInvalidState)
	}

	// A PENDING order has no tickets yet, so its seat ids normally come
	// from the saga checkpoint; the ticket path covers orders canceled by
	// operators between issuance and confirmation in older data.
	seatIDs, saga := so.seatIDsForOrder(ctx, orderID)

	var releaseErr error
	if len(seatIDs) > 0 {
		releaseErr = so.call(ctx, "release", func(ctx context.Context) error {
			return so.seats.Release(ctx, seatIDs)
		})
	}

	if err := so.orders.SetOrderOutcome(ctx, orderID, models.OrderCanceled, order.PaymentStatus); err != nil {
		return nil, asDependencyErr("cancel order", err)
	}
	order.Status = models.OrderCanceled
	util.OrdersCanceledTotal.WithLabelValues("user_cancel").Inc()

	if saga != nil {
		step := models.SagaCanceled
		detail := ""
		if releaseErr != nil {
			step = models.SagaCompensating
			detail = "release_failed: " + releaseErr.Error()
		}
		so.step(ctx, saga, orderID, step, detail)
	}

	canceled := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled),
		OrderID:   orderID,
		UserID:    order.UserID,
		Reason:    "user_cancel",
	}
	if err := so.events.PublishOrderCanceled(ctx, canceled); err != nil {
		so.logger.Error("Failed to publish OrderCanceled event", zap.Error(err))
	}
	so.notify(ctx, models.NotifyOrderCancellation, order,
		"Order Cancellation",
		fmt.Sprintf("Your order %d has been canceled successfully.", orderID))

	if releaseErr != nil {
		util.CompensationFailuresTotal.Inc()
		so.logger.Error("Seat release failed during cancel, parked for reconciliation",
			zap.Int64("order_id", orderID),
			zap.Int64s("seat_ids", seatIDs),
			zap.Error(releaseErr))
		return order, fmt.Errorf("order canceled but seats not released: %w", fault.ErrInconsistent)
	}
	return order, nil
}

// GetOrder retrieves an order and its tickets
func (so *SagaOrchestrator) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.Ticket, error) {
	order, err := so.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	tickets, err := so.orders.GetTicketsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, tickets, nil
}

// ListUserOrders retrieves all orders of a user
func (so *SagaOrchestrator) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return so.orders.GetOrdersByUserID(ctx, userID)
}

// seatIDsForOrder recovers the seat set implicated by an order: from its
// tickets when they exist, else from the saga checkpoint.
func (so *SagaOrchestrator) seatIDsForOrder(ctx context.Context, orderID int64) ([]int64, *models.Saga) {
	var saga *models.Saga
	if s, err := so.sagas.GetSagaByOrderID(ctx, orderID); err == nil {
		saga = s
	}

	tickets, err := so.orders.GetTicketsByOrderID(ctx, orderID)
	if err == nil && len(tickets) > 0 {
		seatIDs := make([]int64, 0, len(tickets))
		for _, t := range tickets {
			seatIDs = append(seatIDs, t.SeatID)
		}
		return seatIDs, saga
	}

	if saga != nil {
		return saga.SeatIDs, saga
	}
	return nil, nil
}

// cancelPending compensates a PENDING order whose payment step did not end
// in SUCCESS: release seats, mark the order CANCELED. The cancellation
// itself must come through even when release keeps failing; in that case
// the saga parks in COMPENSATING and the recovery sweep retries, so the
// seats are never stranded RESERVED indefinitely.
func (so *SagaOrchestrator) cancelPending(ctx context.Context, saga *models.Saga, order *models.Order, paymentStatus, reason string) {
	releaseErr := so.call(ctx, "release", func(ctx context.Context) error {
		return so.seats.Release(ctx, saga.SeatIDs)
	})

	if err := so.orders.SetOrderOutcome(ctx, order.OrderID, models.OrderCanceled, paymentStatus); err != nil {
		so.logger.Error("Failed to cancel order during compensation",
			zap.Int64("order_id", order.OrderID), zap.Error(err))
		releaseErr = errors.Join(releaseErr, err)
	} else {
		order.Status = models.OrderCanceled
		order.PaymentStatus = paymentStatus
	}
	util.OrdersCanceledTotal.WithLabelValues("compensation").Inc()

	if releaseErr != nil {
		util.CompensationFailuresTotal.Inc()
		so.step(ctx, saga, order.OrderID, models.SagaCompensating, reason+"; "+releaseErr.Error())
		so.logger.Error("Compensation incomplete, parked for reconciliation",
			zap.Int64("order_id", order.OrderID),
			zap.String("saga_id", saga.SagaID),
			zap.Error(releaseErr))
	} else {
		so.step(ctx, saga, order.OrderID, models.SagaCanceled, reason)
	}

	canceled := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled),
		OrderID:   order.OrderID,
		UserID:    order.UserID,
		Reason:    reason,
	}
	if err := so.events.PublishOrderCanceled(ctx, canceled); err != nil {
		so.logger.Error("Failed to publish OrderCanceled event", zap.Error(err))
	}
	so.notify(ctx, models.NotifyOrderCancellation, order,
		"Order Cancellation",
		fmt.Sprintf("Your order %d could not be completed.", order.OrderID))
}

// compensatePaid unwinds a failure that happened after a successful
// charge: refund the payment, release the seats, cancel the order. When
// seats already reached ALLOCATED the release cannot restore them, so the
// saga always parks in COMPENSATING for reconciliation in that case.
func (so *SagaOrchestrator) compensatePaid(ctx context.Context, saga *models.Saga, order *models.Order, payment *models.Payment, allocated bool, reason string) {
	var failures error

	refundErr := so.call(ctx, "refund", func(ctx context.Context) error {
		_, err := so.ledger.Refund(ctx, payment.PaymentID)
		if errors.Is(err, fault.ErrInvalidState) {
			// Already refunded by a previous compensation attempt.
			return nil
		}
		return err
	})
	failures = errors.Join(failures, refundErr)

	if !allocated {
		failures = errors.Join(failures, so.call(ctx, "release", func(ctx context.Context) error {
			return so.seats.Release(ctx, saga.SeatIDs)
		}))
	}

	if err := so.orders.SetOrderOutcome(ctx, order.OrderID, models.OrderCanceled, models.OrderPaymentFailed); err != nil {
		failures = errors.Join(failures, err)
	} else {
		order.Status = models.OrderCanceled
		order.PaymentStatus = models.OrderPaymentFailed
	}
	util.OrdersCanceledTotal.WithLabelValues("compensation").Inc()

	if failures != nil || allocated {
		util.CompensationFailuresTotal.Inc()
		detail := reason
		if failures != nil {
			detail += "; " + failures.Error()
		}
		if allocated {
			detail += "; seats left ALLOCATED"
		}
		so.step(ctx, saga, order.OrderID, models.SagaCompensating, detail)
		so.logger.Error("Post-payment compensation incomplete, parked for reconciliation",
			zap.Int64("order_id", order.OrderID),
			zap.String("saga_id", saga.SagaID),
			zap.String("detail", detail))
	} else {
		so.step(ctx, saga, order.OrderID, models.SagaCanceled, reason)
	}

	canceled := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled),
		OrderID:   order.OrderID,
		UserID:    order.UserID,
		Reason:    reason,
	}
	if err := so.events.PublishOrderCanceled(ctx, canceled); err != nil {
		so.logger.Error("Failed to publish OrderCanceled event", zap.Error(err))
	}
}

// releaseAndEnd releases a reservation that never got an order row.
func (so *SagaOrchestrator) releaseAndEnd(ctx context.Context, saga *models.Saga, orderID int64, reason string) {
	err := so.call(ctx, "release", func(ctx context.Context) error {
		return so.seats.Release(ctx, saga.SeatIDs)
	})
	if err != nil {
		util.CompensationFailuresTotal.Inc()
		so.step(ctx, saga, orderID, models.SagaCompensating, reason+"; "+err.Error())
		return
	}
	so.step(ctx, saga, orderID, models.SagaCanceled, reason)
}

// notify fires one best-effort notification. Failures are logged only.
func (so *SagaOrchestrator) notify(ctx context.Context, kind string, order *models.Order, subject, body string) {
	recipient := fmt.Sprintf("user-%d@example.com", order.UserID)
	if err := so.notifier.Send(ctx, kind, models.ChannelEmail, recipient, subject, body); err != nil {
		so.logger.Warn("Notification send failed",
			zap.String("kind", kind),
			zap.Int64("order_id", order.OrderID),
			zap.Error(err))
	}
}

// call runs one saga step under the timeout/retry policy.
func (so *SagaOrchestrator) call(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := util.Retry(ctx, so.opts.CallTimeout, so.opts.CallRetries, fn)
	util.SagaStepLatency.WithLabelValues(step).Observe(time.Since(start).Seconds())
	return err
}

// step records a saga transition. Checkpoint write failures are logged and
// tolerated: the worst case is a recovery pass over an already-finished
// saga, and every recovery action is idempotent.
func (so *SagaOrchestrator) step(ctx context.Context, saga *models.Saga, orderID int64, step, lastError string) {
	if orderID == 0 {
		orderID = saga.OrderID
	}
	saga.OrderID = orderID
	saga.Step = step
	if err := so.sagas.UpdateSagaStep(ctx, saga.SagaID, orderID, step, lastError); err != nil {
		so.logger.Error("Failed to checkpoint saga step",
			zap.String("saga_id", saga.SagaID),
			zap.String("step", step),
			zap.Error(err))
	}
}
