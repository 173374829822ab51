package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const (
	defaultKeyPrefix = "orders:"
	clearScanCount   = 500
)

// Redis хранит проекции в Redis: JSON-значения с EX.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// RedisOption настраивает Redis-кэш.
type RedisOption func(*Redis)

// WithKeyPrefix меняет префикс ключей (по умолчанию "orders:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis создаёт кэш поверх готового клиента go-redis.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    normalizeTTL(ttl),
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(orderID string) string {
	return r.prefix + orderID
}

func (r *Redis) Lookup(ctx context.Context, orderID string) (domain.OrderView, bool, error) {
	raw, err := r.client.Get(ctx, r.key(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderView{}, false, nil
		}
		return domain.OrderView{}, false, fmt.Errorf("redis get %s: %w", orderID, err)
	}

	var view domain.OrderView
	if err := json.Unmarshal(raw, &view); err != nil {
		return domain.OrderView{}, false, fmt.Errorf("decode cached order %s: %w", orderID, err)
	}
	return view, true, nil
}

func (r *Redis) Populate(ctx context.Context, orderID string, view domain.OrderView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode cached order %s: %w", orderID, err)
	}
	if err := r.client.Set(ctx, r.key(orderID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", orderID, err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, orderID string) error {
	if err := r.client.Del(ctx, r.key(orderID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", orderID, err)
	}
	return nil
}

// Clear проходит SCAN по префиксу и удаляет найденные ключи пачками через UNLINK.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", clearScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis unlink: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping проверяет доступность Redis, используется health-чекером.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ domain.OrderCache = (*Redis)(nil)
