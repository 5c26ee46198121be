package store

import (
	"context"
	"fmt"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"

	"github.com/lib/pq"
)

// ReserveSeats atomically transitions every requested seat from AVAILABLE
// to RESERVED. The whole set is locked FOR UPDATE first; if any seat is
// missing or not AVAILABLE the transaction rolls back and the conflicting
// ids are reported. Two overlapping requests can never each win a subset.
func (s *Store) ReserveSeats(ctx context.Context, seatIDs []int64) ([]models.Seat, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	var seats []models.Seat
	err = tx.SelectContext(ctx, &seats,
		"SELECT * FROM seats WHERE seat_id = ANY($1) ORDER BY seat_id FOR UPDATE",
		pq.Array(seatIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock seats: %w", err)
	}

	found := make(map[int64]string, len(seats))
	for _, seat := range seats {
		found[seat.SeatID] = seat.Status
	}

	var conflicts []int64
	for _, id := range seatIDs {
		status, ok := found[id]
		if !ok || status != models.SeatAvailable {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return nil, &fault.SeatConflictError{SeatIDs: conflicts}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE seats SET status = $1 WHERE seat_id = ANY($2) AND status = $3",
		models.SeatReserved, pq.Array(seatIDs), models.SeatAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seats: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(seatIDs)) {
		return nil, fmt.Errorf("reserved %d of %d seats: %w", n, len(seatIDs), fault.ErrSeatUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	for i := range seats {
		seats[i].Status = models.SeatReserved
	}
	return seats, nil
}

// ReleaseSeats transitions RESERVED seats back to AVAILABLE. Releasing an
// already-AVAILABLE seat is a no-op so compensation can be retried.
func (s *Store) ReleaseSeats(ctx context.Context, seatIDs []int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE seats SET status = $1 WHERE seat_id = ANY($2) AND status = $3",
		models.SeatAvailable, pq.Array(seatIDs), models.SeatReserved)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// AllocateSeats transitions RESERVED seats to ALLOCATED and then verifies
// the full set ended up ALLOCATED, so a resumed saga can run it again over
// already-allocated seats while any other state is rejected.
func (s *Store) AllocateSeats(ctx context.Context, seatIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin allocation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE seats SET status = $1 WHERE seat_id = ANY($2) AND status = $3",
		models.SeatAllocated, pq.Array(seatIDs), models.SeatReserved)
	if err != nil {
		return fmt.Errorf("failed to allocate seats: %w", err)
	}

	var allocated int64
	err = tx.GetContext(ctx, &allocated,
		"SELECT COUNT(*) FROM seats WHERE seat_id = ANY($1) AND status = $2",
		pq.Array(seatIDs), models.SeatAllocated)
	if err != nil {
		return fmt.Errorf("failed to verify allocation: %w", err)
	}
	if allocated != int64(len(seatIDs)) {
		return fmt.Errorf("allocated %d of %d seats: %w", allocated, len(seatIDs), fault.ErrInvalidState)
	}

	return tx.Commit()
}

// SeatsByIDs returns the seats with the given ids, without locking.
func (s *Store) SeatsByIDs(ctx context.Context, seatIDs []int64) ([]models.Seat, error) {
	var seats []models.Seat
	err := s.db.SelectContext(ctx, &seats,
		"SELECT * FROM seats WHERE seat_id = ANY($1) ORDER BY seat_id", pq.Array(seatIDs))
	return seats, err
}

// SeatsForEvent returns all seats of an event with their current status.
func (s *Store) SeatsForEvent(ctx context.Context, eventID int64) ([]models.Seat, error) {
	var seats []models.Seat
	err := s.db.SelectContext(ctx, &seats,
		"SELECT * FROM seats WHERE event_id = $1 ORDER BY seat_id", eventID)
	return seats, err
}

// CreateSeats inserts catalog seats. Used by seeding, not by the saga.
func (s *Store) CreateSeats(ctx context.Context, seats []models.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	for _, seat := range seats {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO seats (seat_id, event_id, section, "row", number, price, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (seat_id) DO NOTHING`,
			seat.SeatID, seat.EventID, seat.Section, seat.Row, seat.Number, seat.Price, models.SeatAvailable)
		if err != nil {
			return fmt.Errorf("failed to insert seat %d: %w", seat.SeatID, err)
		}
	}
	return nil
}
