package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// SeatStore is the seat inventory contract the saga coordinator depends on.
// Reserve is all-or-nothing; Release is idempotent; Allocate is a checked
// transition that tolerates a resumed saga re-running it.
type SeatStore interface {
	Reserve(ctx context.Context, seatIDs []int64) ([]models.Seat, error)
	Release(ctx context.Context, seatIDs []int64) error
	Allocate(ctx context.Context, seatIDs []int64) error
	Availability(ctx context.Context, eventID int64) ([]models.Seat, error)
}

// SeatService is the Postgres-backed seat store with a Redis read cache.
type SeatService struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSeatService creates a new seat service
func NewSeatService(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *SeatService {
	return &SeatService{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// Reserve atomically moves the whole seat set AVAILABLE -> RESERVED
func (ss *SeatService) Reserve(ctx context.Context, seatIDs []int64) ([]models.Seat, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.Reserve")
	defer span.End()

	seats, err := ss.store.ReserveSeats(ctx, seatIDs)
	if err != nil {
		if errors.Is(err, fault.ErrSeatUnavailable) {
			util.SeatConflictsTotal.Inc()
			return nil, err
		}
		return nil, asDependencyErr("reserve seats", err)
	}

	util.SeatsReservedTotal.Add(float64(len(seats)))
	ss.invalidate(ctx, seats)
	return seats, nil
}

// Release moves RESERVED seats back to AVAILABLE; already-AVAILABLE seats
// are a no-op so compensation can run any number of times.
func (ss *SeatService) Release(ctx context.Context, seatIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "SeatService.Release")
	defer span.End()

	if err := ss.store.ReleaseSeats(ctx, seatIDs); err != nil {
		return asDependencyErr("release seats", err)
	}
	util.SeatsReleasedTotal.Add(float64(len(seatIDs)))
	ss.invalidateIDs(ctx, seatIDs)
	return nil
}

// Allocate moves RESERVED seats to ALLOCATED
func (ss *SeatService) Allocate(ctx context.Context, seatIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "SeatService.Allocate")
	defer span.End()

	if err := ss.store.AllocateSeats(ctx, seatIDs); err != nil {
		if errors.Is(err, fault.ErrInvalidState) {
			return err
		}
		return asDependencyErr("allocate seats", err)
	}
	ss.invalidateIDs(ctx, seatIDs)
	return nil
}

// Availability returns the status snapshot of every seat of an event,
// served from the Redis cache when it is warm.
func (ss *SeatService) Availability(ctx context.Context, eventID int64) ([]models.Seat, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.Availability")
	defer span.End()

	if ss.redis != nil {
		cached, err := ss.redis.GetCachedAvailability(ctx, eventID)
		if err != nil {
			ss.logger.Warn("Availability cache read failed", zap.Int64("event_id", eventID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	seats, err := ss.store.SeatsForEvent(ctx, eventID)
	if err != nil {
		return nil, asDependencyErr("load seats", err)
	}

	if ss.redis != nil {
		if err := ss.redis.CacheAvailability(ctx, eventID, seats, ss.cacheTTL); err != nil {
			ss.logger.Warn("Availability cache write failed", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}
	return seats, nil
}

func (ss *SeatService) invalidate(ctx context.Context, seats []models.Seat) {
	if ss.redis == nil || len(seats) == 0 {
		return
	}
	if err := ss.redis.InvalidateAvailability(ctx, seats[0].EventID); err != nil {
		ss.logger.Warn("Availability cache invalidation failed",
			zap.Int64("event_id", seats[0].EventID), zap.Error(err))
	}
}

// invalidateIDs drops the cache for the events owning the given seats. The
// seat ids alone do not name an event, so the rows are looked up first; a
// lookup failure only costs cache freshness, never correctness.
func (ss *SeatService) invalidateIDs(ctx context.Context, seatIDs []int64) {
	if ss.redis == nil || len(seatIDs) == 0 {
		return
	}
	seats, err := ss.store.SeatsByIDs(ctx, seatIDs)
	if err != nil {
		return
	}
	events := make(map[int64]struct{})
	for _, seat := range seats {
		events[seat.EventID] = struct{}{}
	}
	for eventID := range events {
		_ = ss.redis.InvalidateAvailability(ctx, eventID)
	}
}

// asDependencyErr classifies unexpected store failures as transport-class
// so the coordinator's retry policy applies; taxonomy errors pass through.
func asDependencyErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, fault.ErrDependencyUnavailable)
}
