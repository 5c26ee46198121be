package service

import (
	"context"
	"sync"
	"testing"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(decider ChargeDecider) (*PaymentLedger, *memPaymentStore) {
	store := newMemPaymentStore()
	return NewPaymentLedger(store, decider, nopEvents{}), store
}

func TestChargeRequiresKey(t *testing.T) {
	ledger, _ := newLedger(alwaysDecide(models.PaymentSuccess))

	_, err := ledger.Charge(context.Background(), ChargeRequest{OrderID: 1, Amount: 10})
	assert.ErrorIs(t, err, fault.ErrMissingIdempotencyKey)
}

func TestChargeReplayReturnsOriginalRecord(t *testing.T) {
	ledger, _ := newLedger(alwaysDecide(models.PaymentSuccess))
	ctx := context.Background()

	req := ChargeRequest{OrderID: 1, Amount: 131.25, Method: "CREDIT_CARD", IdempotencyKey: "ref-1"}
	first, err := ledger.Charge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, first.Status)
	assert.NotEmpty(t, first.TxID)

	second, err := ledger.Charge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.TxID, second.TxID)
}

func TestChargeFailedReplayStaysFailed(t *testing.T) {
	// A FAILED attempt is final for its key; only a fresh key gets a fresh
	// decision.
	decisions := []string{models.PaymentFailed, models.PaymentSuccess}
	var calls int
	decider := func(ChargeRequest) string {
		status := decisions[calls]
		calls++
		return status
	}
	ledger, _ := newLedger(decider)
	ctx := context.Background()

	first, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 10, IdempotencyKey: "ref-failed"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, first.Status)

	replay, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 10, IdempotencyKey: "ref-failed"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, replay.Status)
	assert.Equal(t, first.PaymentID, replay.PaymentID)
	assert.Equal(t, 1, calls, "replay must not re-decide")

	fresh, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 10, IdempotencyKey: "ref-retry"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, fresh.Status)
}

func TestChargeConcurrentDuplicatesOneRecord(t *testing.T) {
	ledger, store := newLedger(alwaysDecide(models.PaymentSuccess))
	ctx := context.Background()

	const workers = 8
	payments := make([]*models.Payment, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payments[i], errs[i] = ledger.Charge(ctx, ChargeRequest{
				OrderID: 1, Amount: 50, IdempotencyKey: "ref-race",
			})
		}(i)
	}
	wg.Wait()

	for i, p := range payments {
		require.NoError(t, errs[i])
		assert.Equal(t, payments[0].PaymentID, p.PaymentID)
	}
	assert.Len(t, store.byRef, 1)
}

func TestRefundTransitions(t *testing.T) {
	ledger, _ := newLedger(alwaysDecide(models.PaymentSuccess))
	ctx := context.Background()

	payment, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 50, IdempotencyKey: "ref-refund"})
	require.NoError(t, err)

	refunded, err := ledger.Refund(ctx, payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)

	_, err = ledger.Refund(ctx, payment.PaymentID)
	assert.ErrorIs(t, err, fault.ErrInvalidState)

	_, err = ledger.Refund(ctx, 9999)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestRefundRejectsFailedPayment(t *testing.T) {
	ledger, _ := newLedger(alwaysDecide(models.PaymentFailed))
	ctx := context.Background()

	payment, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 50, IdempotencyKey: "ref-declined"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)
	assert.Empty(t, payment.TxID)

	_, err = ledger.Refund(ctx, payment.PaymentID)
	assert.ErrorIs(t, err, fault.ErrInvalidState)
}

func TestLookup(t *testing.T) {
	ledger, _ := newLedger(alwaysDecide(models.PaymentSuccess))
	ctx := context.Background()

	_, err := ledger.Lookup(ctx, "ref-missing")
	assert.ErrorIs(t, err, fault.ErrNotFound)

	payment, err := ledger.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 50, IdempotencyKey: "ref-known"})
	require.NoError(t, err)

	found, err := ledger.Lookup(ctx, "ref-known")
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID, found.PaymentID)
}
