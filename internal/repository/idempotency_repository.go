package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrIdempotencyKeyInFlight = errors.New("a request with this idempotency key is already in progress")
)

const inFlightMarker = "in-flight"

// InFlightTTL caps how long an unfinished reservation blocks its key
const InFlightTTL = time.Minute

// IdempotencyRepository remembers which order an idempotency key produced
type IdempotencyRepository interface {
	// Reserve claims key for InFlightTTL. When the key already produced an
	// order its id is returned with reserved=false.
	Reserve(ctx context.Context, key string) (orderID int64, reserved bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

type redisIdempotencyRepository struct {
	client      *redis.Client
	ttl         time.Duration
	inFlightTTL time.Duration
}

// NewIdempotencyRepository creates a redis-backed IdempotencyRepository.
// Completed keys live for ttl; reservations live for InFlightTTL at most.
func NewIdempotencyRepository(client *redis.Client, ttl time.Duration) IdempotencyRepository {
	return &redisIdempotencyRepository{client: client, ttl: ttl, inFlightTTL: min(ttl, InFlightTTL)}
}

func idempotencyKey(key string) string {
	return "idem:order:" + key
}

func (r *redisIdempotencyRepository) Reserve(ctx context.Context, key string) (int64, bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKey(key), inFlightMarker, r.inFlightTTL).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := r.client.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry
		return 0, false, ErrIdempotencyKeyInFlight
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if val == inFlightMarker {
		return 0, false, ErrIdempotencyKeyInFlight
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency record %q: %w", val, err)
	}
	return orderID, false, nil
}

func (r *redisIdempotencyRepository) Complete(ctx context.Context, key string, orderID int64) error {
	if err := r.client.Set(ctx, idempotencyKey(key), strconv.FormatInt(orderID, 10), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

func (r *redisIdempotencyRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
