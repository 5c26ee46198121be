package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketing-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(eventID int64) string {
	return fmt.Sprintf("availability:%d", eventID)
}

// CacheAvailability stores an availability snapshot for an event with a TTL.
// Postgres stays the source of truth; the cache only absorbs read traffic.
func (c *Client) CacheAvailability(ctx context.Context, eventID int64, seats []models.Seat, ttl time.Duration) error {
	payload, err := json.Marshal(seats)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}
	return c.rdb.Set(ctx, availabilityKey(eventID), payload, ttl).Err()
}

// GetCachedAvailability returns the cached snapshot, or (nil, nil) on a miss.
func (c *Client) GetCachedAvailability(ctx context.Context, eventID int64) ([]models.Seat, error) {
	payload, err := c.rdb.Get(ctx, availabilityKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var seats []models.Seat
	if err := json.Unmarshal(payload, &seats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
	}
	return seats, nil
}

// InvalidateAvailability drops the cached snapshot after a seat mutation
func (c *Client) InvalidateAvailability(ctx context.Context, eventID int64) error {
	return c.rdb.Del(ctx, availabilityKey(eventID)).Err()
}

// AcquireLock acquires a distributed lock. Used by the recovery sweep so
// concurrent service instances never compensate the same saga twice.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
