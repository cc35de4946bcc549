package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:pedido:"
	idempotencyKeyTTL    = 24 * time.Hour
	// An unbound reservation lapses quickly so a submission that died between
	// reserve and bind does not block its key for a day.
	reservationTTL = 30 * time.Second
	reservedMarker = 0
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ReserveIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, reservedMarker, reservationTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) LookupIdempotency(ctx context.Context, key string) (int64, bool, error) {
	id, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

func (r *RedisAdapter) BindIdempotency(ctx context.Context, key string, orderID int64) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, idempotencyKeyTTL).Err()
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
