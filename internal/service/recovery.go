package service

import (
	"context"
	"errors"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// RecoverStalled drives sagas abandoned by a crashed coordinator to a
// terminal step. Sagas past the payment step roll forward to CONFIRMED;
// everything earlier is compensated. Each saga is handled under a
// distributed lock so concurrent instances never double-compensate.
func (so *SagaOrchestrator) RecoverStalled(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.RecoverStalled")
	defer span.End()

	cutoff := time.Now().Add(-so.opts.StaleAfter)
	stalled, err := so.sagas.ListStalledSagas(ctx, cutoff)
	if err != nil {
		return asDependencyErr("list stalled sagas", err)
	}

	for i := range stalled {
		saga := stalled[i]
		if !so.lockSaga(ctx, saga.SagaID) {
			continue
		}
		so.recoverOne(ctx, &saga)
		so.unlockSaga(ctx, saga.SagaID)
	}
	return nil
}

func (so *SagaOrchestrator) recoverOne(ctx context.Context, saga *models.Saga) {
	so.logger.Warn("Recovering stalled saga",
		zap.String("saga_id", saga.SagaID),
		zap.String("step", saga.Step),
		zap.Int64("order_id", saga.OrderID))

	switch saga.Step {
	case models.SagaReserving:
		// The reservation may or may not have committed; release is
		// idempotent either way, and no payment was attempted.
		so.recoverCancel(ctx, saga, "recovered_before_charge")

	case models.SagaCharging:
		// The charge outcome is unknown. The ledger's reference is the
		// source of truth: a settled SUCCESS rolls forward, anything else
		// compensates. If the ledger itself cannot be read the saga is left
		// for the next sweep rather than guessed at.
		payment, err := so.ledger.Lookup(ctx, saga.IdempotencyKey)
		switch {
		case err == nil && payment.Status == models.PaymentSuccess && payment.OrderID == saga.OrderID:
			so.recoverForward(ctx, saga, payment)
		case err == nil || errors.Is(err, fault.ErrNotFound):
			so.recoverCancel(ctx, saga, "recovered_charge_unsettled")
		default:
			so.logger.Warn("Ledger unreadable, leaving saga for next sweep",
				zap.String("saga_id", saga.SagaID), zap.Error(err))
		}

	case models.SagaAllocating, models.SagaIssuing:
		payment, err := so.ledger.Lookup(ctx, saga.IdempotencyKey)
		if err != nil {
			so.logger.Error("Cannot recover saga without its payment record",
				zap.String("saga_id", saga.SagaID), zap.Error(err))
			return
		}
		so.recoverForward(ctx, saga, payment)

	case models.SagaNotifying:
		// The order is already CONFIRMED; the notification is best-effort
		// and not replayed.
		so.step(ctx, saga, saga.OrderID, models.SagaDone, "")
		util.SagasRecoveredTotal.WithLabelValues("completed").Inc()

	case models.SagaCompensating:
		so.recoverCompensation(ctx, saga)
	}
}

// recoverCompensation retries a compensation that did not complete: refund a
// settled SUCCESS charge, release held seats, cancel the order. The saga
// only turns terminal when every leg is resolved; an unrecoverable leg, such
// as seats stuck ALLOCATED under a canceled order, keeps it parked in
// COMPENSATING so the record is never erased.
func (so *SagaOrchestrator) recoverCompensation(ctx context.Context, saga *models.Saga) {
	var failures error

	if saga.IdempotencyKey != "" {
		payment, err := so.ledger.Lookup(ctx, saga.IdempotencyKey)
		switch {
		case err == nil && payment.Status == models.PaymentSuccess:
			failures = errors.Join(failures, so.call(ctx, "refund", func(ctx context.Context) error {
				_, err := so.ledger.Refund(ctx, payment.PaymentID)
				if errors.Is(err, fault.ErrInvalidState) {
					// Refunded by a previous attempt.
					return nil
				}
				return err
			}))
		case err != nil && !errors.Is(err, fault.ErrNotFound):
			failures = errors.Join(failures, err)
		}
	}

	failures = errors.Join(failures, so.call(ctx, "release", func(ctx context.Context) error {
		return so.seats.Release(ctx, saga.SeatIDs)
	}))

	if saga.OrderID != 0 {
		if err := so.orders.SetOrderOutcome(ctx, saga.OrderID, models.OrderCanceled, models.OrderPaymentFailed); err != nil {
			failures = errors.Join(failures, err)
		}
	}

	stuck, err := so.allocatedSeats(ctx, saga)
	if err != nil {
		failures = errors.Join(failures, err)
	}

	if failures != nil || len(stuck) > 0 {
		util.CompensationFailuresTotal.Inc()
		detail := "compensation retry unresolved"
		if failures != nil {
			detail += "; " + failures.Error()
		}
		if len(stuck) > 0 {
			detail += "; seats left ALLOCATED"
		}
		so.step(ctx, saga, saga.OrderID, models.SagaCompensating, detail)
		so.logger.Error("Compensation retry still unresolved",
			zap.String("saga_id", saga.SagaID),
			zap.Int64s("allocated_seat_ids", stuck),
			zap.String("detail", detail))
		return
	}

	so.step(ctx, saga, saga.OrderID, models.SagaCanceled, "recovered_compensation_retry")
	util.SagasRecoveredTotal.WithLabelValues("canceled").Inc()
}

// allocatedSeats reports which of the saga's seats are ALLOCATED. Under a
// compensated order that state cannot be undone here.
func (so *SagaOrchestrator) allocatedSeats(ctx context.Context, saga *models.Saga) ([]int64, error) {
	all, err := so.seats.Availability(ctx, saga.EventID)
	if err != nil {
		return nil, err
	}
	statuses := make(map[int64]string, len(all))
	for _, seat := range all {
		statuses[seat.SeatID] = seat.Status
	}

	var stuck []int64
	for _, id := range saga.SeatIDs {
		if statuses[id] == models.SeatAllocated {
			stuck = append(stuck, id)
		}
	}
	return stuck, nil
}

// recoverForward finishes a saga whose payment settled SUCCESS.
func (so *SagaOrchestrator) recoverForward(ctx context.Context, saga *models.Saga, payment *models.Payment) {
	order, err := so.orders.GetOrderByID(ctx, saga.OrderID)
	if err != nil {
		so.logger.Error("Cannot recover saga without its order",
			zap.String("saga_id", saga.SagaID), zap.Error(err))
		return
	}
	if order.Status == models.OrderCanceled {
		so.step(ctx, saga, saga.OrderID, models.SagaCanceled, "order already canceled")
		return
	}

	seats, err := so.sagaSeats(ctx, saga)
	if err != nil {
		so.logger.Error("Cannot resolve saga seats for roll-forward",
			zap.String("saga_id", saga.SagaID), zap.Error(err))
		return
	}

	if _, _, err := so.completeOrder(ctx, saga, order, payment, seats); err != nil {
		so.logger.Error("Saga roll-forward failed",
			zap.String("saga_id", saga.SagaID), zap.Error(err))
		return
	}
	util.SagasRecoveredTotal.WithLabelValues("completed").Inc()
}

// recoverCancel compensates: seats released, order (if any) canceled.
func (so *SagaOrchestrator) recoverCancel(ctx context.Context, saga *models.Saga, reason string) {
	err := so.call(ctx, "release", func(ctx context.Context) error {
		return so.seats.Release(ctx, saga.SeatIDs)
	})
	if err != nil {
		util.CompensationFailuresTotal.Inc()
		so.step(ctx, saga, saga.OrderID, models.SagaCompensating, reason+"; "+err.Error())
		return
	}

	if saga.OrderID != 0 {
		if err := so.orders.SetOrderOutcome(ctx, saga.OrderID, models.OrderCanceled, models.OrderPaymentFailed); err != nil {
			util.CompensationFailuresTotal.Inc()
			so.step(ctx, saga, saga.OrderID, models.SagaCompensating, reason+"; "+err.Error())
			return
		}
		util.OrdersCanceledTotal.WithLabelValues("recovery").Inc()
	}

	so.step(ctx, saga, saga.OrderID, models.SagaCanceled, reason)
	util.SagasRecoveredTotal.WithLabelValues("canceled").Inc()
}

// sagaSeats rebuilds the reserved seat rows, price included, from the
// event's availability snapshot. Prices are immutable, so the snapshot
// still carries the reservation-time price.
func (so *SagaOrchestrator) sagaSeats(ctx context.Context, saga *models.Saga) ([]models.Seat, error) {
	all, err := so.seats.Availability(ctx, saga.EventID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Seat, len(all))
	for _, seat := range all {
		byID[seat.SeatID] = seat
	}

	seats := make([]models.Seat, 0, len(saga.SeatIDs))
	for _, id := range saga.SeatIDs {
		seat, ok := byID[id]
		if !ok {
			return nil, errors.New("seat missing from event snapshot")
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

func (so *SagaOrchestrator) lockSaga(ctx context.Context, sagaID string) bool {
	if so.locker == nil {
		return true
	}
	ok, err := so.locker.AcquireLock(ctx, "saga:"+sagaID, so.opts.StaleAfter)
	if err != nil {
		so.logger.Warn("Saga lock unavailable, skipping", zap.String("saga_id", sagaID), zap.Error(err))
		return false
	}
	return ok
}

func (so *SagaOrchestrator) unlockSaga(ctx context.Context, sagaID string) {
	if so.locker == nil {
		return
	}
	if err := so.locker.ReleaseLock(ctx, "saga:"+sagaID); err != nil {
		so.logger.Warn("Saga unlock failed", zap.String("saga_id", sagaID), zap.Error(err))
	}
}
