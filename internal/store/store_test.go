package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the database named by TEST_DATABASE_URL and
// applies the schema. The suite is skipped when no database is available.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration tests")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	_, err = s.db.ExecContext(ctx, "TRUNCATE seats, orders, tickets, payments, sagas CASCADE")
	require.NoError(t, err)
	return s
}

func seedSeats(t *testing.T, s *Store, eventID int64, count int) []int64 {
	t.Helper()
	seats := make([]models.Seat, 0, count)
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		id := eventID*1000 + int64(i+1)
		seats = append(seats, models.Seat{
			SeatID:  id,
			EventID: eventID,
			Section: "A",
			Row:     "1",
			Number:  fmt.Sprintf("%d", i+1),
			Price:   50,
			Status:  models.SeatAvailable,
		})
		ids = append(ids, id)
	}
	require.NoError(t, s.CreateSeats(context.Background(), seats))
	return ids
}

func TestReserveSeatsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedSeats(t, s, 1, 3)

	reserved, err := s.ReserveSeats(ctx, ids[:2])
	require.NoError(t, err)
	assert.Len(t, reserved, 2)

	// Overlapping request: one seat free, one held. Nothing may change.
	_, err = s.ReserveSeats(ctx, []int64{ids[1], ids[2]})
	require.ErrorIs(t, err, fault.ErrSeatUnavailable)
	var conflict *fault.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int64{ids[1]}, conflict.SeatIDs)

	seats, err := s.SeatsByIDs(ctx, []int64{ids[2]})
	require.NoError(t, err)
	assert.Equal(t, models.SeatAvailable, seats[0].Status)
}

func TestReserveSeatsConcurrent(t *testing.T) {
	s := newTestStore(t)
	ids := seedSeats(t, s, 2, 1)

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ReserveSeats(context.Background(), ids)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, fault.ErrSeatUnavailable)
		}
	}
	assert.Equal(t, 1, won)
}

func TestSeatLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedSeats(t, s, 3, 2)

	_, err := s.ReserveSeats(ctx, ids)
	require.NoError(t, err)

	require.NoError(t, s.AllocateSeats(ctx, ids))
	seats, err := s.SeatsByIDs(ctx, ids)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, models.SeatAllocated, seat.Status)
	}

	// Release only reverses RESERVED; ALLOCATED seats stay sold.
	require.NoError(t, s.ReleaseSeats(ctx, ids))
	seats, err = s.SeatsByIDs(ctx, ids)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, models.SeatAllocated, seat.Status)
	}
}

func TestAllocateRequiresHold(t *testing.T) {
	s := newTestStore(t)
	ids := seedSeats(t, s, 4, 1)

	err := s.AllocateSeats(context.Background(), ids)
	assert.ErrorIs(t, err, fault.ErrInvalidState)
}

func TestInsertPaymentReferenceUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Payment{OrderID: 1, Amount: 100, Method: "CREDIT_CARD",
		Status: models.PaymentSuccess, Reference: "ref-unique", TxID: "TXN-1"}
	created, err := s.InsertPayment(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &models.Payment{OrderID: 2, Amount: 999, Method: "CREDIT_CARD",
		Status: models.PaymentFailed, Reference: "ref-unique"}
	created, err = s.InsertPayment(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PaymentID, dup.PaymentID)
	assert.Equal(t, models.PaymentSuccess, dup.Status)
	assert.Equal(t, int64(1), dup.OrderID)
}

func TestMarkPaymentRefunded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payment := &models.Payment{OrderID: 1, Amount: 100, Method: "CREDIT_CARD",
		Status: models.PaymentSuccess, Reference: "ref-refund", TxID: "TXN-2"}
	_, err := s.InsertPayment(ctx, payment)
	require.NoError(t, err)

	require.NoError(t, s.MarkPaymentRefunded(ctx, payment.PaymentID))
	err = s.MarkPaymentRefunded(ctx, payment.PaymentID)
	assert.ErrorIs(t, err, fault.ErrInvalidState)

	// A missing payment is a lookup miss, not a state violation.
	err = s.MarkPaymentRefunded(ctx, 999999)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestSetOrderOutcomeTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order := &models.Order{UserID: 7, EventID: 1, Status: models.OrderPending,
		PaymentStatus: models.OrderPaymentPending, OrderTotal: 131.25}
	require.NoError(t, s.CreateOrder(ctx, order))

	require.NoError(t, s.SetOrderOutcome(ctx, order.OrderID, models.OrderCanceled, models.OrderPaymentFailed))

	// Terminal: a second outcome write must not stick.
	require.NoError(t, s.SetOrderOutcome(ctx, order.OrderID, models.OrderConfirmed, models.OrderPaymentSuccess))
	got, err := s.GetOrderByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, got.Status)
}

func TestConfirmOrderWithTicketsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order := &models.Order{UserID: 7, EventID: 1, Status: models.OrderPending,
		PaymentStatus: models.OrderPaymentPending, OrderTotal: 105}
	require.NoError(t, s.CreateOrder(ctx, order))

	tickets := []models.Ticket{
		{OrderID: order.OrderID, EventID: 1, SeatID: 10, PricePaid: 50},
		{OrderID: order.OrderID, EventID: 1, SeatID: 11, PricePaid: 50},
	}
	require.NoError(t, s.ConfirmOrderWithTickets(ctx, order.OrderID, tickets))
	require.NoError(t, s.ConfirmOrderWithTickets(ctx, order.OrderID, tickets))

	got, err := s.GetOrderByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, got.Status)

	stored, err := s.GetTicketsByOrderID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSagaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saga := &models.Saga{
		SagaID:         "saga-it-1",
		UserID:         7,
		EventID:        1,
		SeatIDs:        []int64{10, 11},
		IdempotencyKey: "ref-saga",
		Step:           models.SagaReserving,
	}
	require.NoError(t, s.CreateSaga(ctx, saga))
	require.NoError(t, s.UpdateSagaStep(ctx, saga.SagaID, 42, models.SagaCharging, ""))

	got, err := s.GetSagaByOrderID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaID, got.SagaID)
	assert.Equal(t, models.SagaCharging, got.Step)
	assert.Equal(t, []int64{10, 11}, got.SeatIDs)
}
