package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"

	"github.com/lib/pq"
)

type sagaRow struct {
	SagaID         string        `db:"saga_id"`
	OrderID        int64         `db:"order_id"`
	UserID         int64         `db:"user_id"`
	EventID        int64         `db:"event_id"`
	SeatIDs        pq.Int64Array `db:"seat_ids"`
	IdempotencyKey string        `db:"idempotency_key"`
	Step           string        `db:"step"`
	LastError      string        `db:"last_error"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

func (r *sagaRow) toModel() *models.Saga {
	return &models.Saga{
		SagaID:         r.SagaID,
		OrderID:        r.OrderID,
		UserID:         r.UserID,
		EventID:        r.EventID,
		SeatIDs:        []int64(r.SeatIDs),
		IdempotencyKey: r.IdempotencyKey,
		Step:           r.Step,
		LastError:      r.LastError,
		UpdatedAt:      r.UpdatedAt,
	}
}

// CreateSaga persists a new workflow checkpoint before the first remote call
func (s *Store) CreateSaga(ctx context.Context, saga *models.Saga) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sagas (saga_id, order_id, user_id, event_id, seat_ids, idempotency_key, step)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		saga.SagaID, saga.OrderID, saga.UserID, saga.EventID,
		pq.Array(saga.SeatIDs), saga.IdempotencyKey, saga.Step)
	if err != nil {
		return fmt.Errorf("failed to create saga: %w", err)
	}
	return nil
}

// UpdateSagaStep records a step transition. orderID binds the order row to
// the saga once it exists; pass the previous value to leave it unchanged.
func (s *Store) UpdateSagaStep(ctx context.Context, sagaID string, orderID int64, step, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sagas SET order_id = $1, step = $2, last_error = $3, updated_at = NOW() WHERE saga_id = $4",
		orderID, step, lastError, sagaID)
	if err != nil {
		return fmt.Errorf("failed to update saga step: %w", err)
	}
	return nil
}

// GetSagaByOrderID returns the workflow checkpoint that created an order
func (s *Store) GetSagaByOrderID(ctx context.Context, orderID int64) (*models.Saga, error) {
	var row sagaRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM sagas WHERE order_id = $1 ORDER BY updated_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("saga for order %d: %w", orderID, fault.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// ListStalledSagas returns non-terminal sagas untouched since the cutoff.
// These belong to coordinators that crashed or lost connectivity mid-flight.
func (s *Store) ListStalledSagas(ctx context.Context, cutoff time.Time) ([]models.Saga, error) {
	var rows []sagaRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM sagas
		 WHERE step NOT IN ($1, $2) AND updated_at < $3
		 ORDER BY updated_at`,
		models.SagaDone, models.SagaCanceled, cutoff)
	if err != nil {
		return nil, err
	}

	sagas := make([]models.Saga, 0, len(rows))
	for i := range rows {
		sagas = append(sagas, *rows[i].toModel())
	}
	return sagas, nil
}
