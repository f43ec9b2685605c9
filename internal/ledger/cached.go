package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/payment"
)

// StatusCache stores terminal records only. Terminal records never change,
// so a cached copy is never stale.
type StatusCache interface {
	Get(ctx context.Context, correlationID string) (*payment.PendingPayment, bool, error)
	Set(ctx context.Context, p *payment.PendingPayment) error
}

// Cached puts a StatusCache in front of a Ledger's reads. Writes always go
// to the underlying ledger. Cache failures are logged and bypassed.
type Cached struct {
	payment.Ledger
	cache  StatusCache
	logger *zap.Logger
}

func NewCached(inner payment.Ledger, cache StatusCache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{Ledger: inner, cache: cache, logger: logger}
}

func (c *Cached) Get(ctx context.Context, correlationID string) (*payment.PendingPayment, error) {
	p, ok, err := c.cache.Get(ctx, correlationID)
	if err != nil {
		c.logger.Warn("status cache read", zap.Error(err), zap.String("correlation_id", correlationID))
	} else if ok {
		return p, nil
	}

	p, err = c.Ledger.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, p)
	return p, nil
}

func (c *Cached) Resolve(ctx context.Context, correlationID string, res payment.Resolution) (*payment.PendingPayment, error) {
	p, err := c.Ledger.Resolve(ctx, correlationID, res)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, p)
	return p, nil
}

func (c *Cached) remember(ctx context.Context, p *payment.PendingPayment) {
	if !p.State.Terminal() {
		return
	}
	if err := c.cache.Set(ctx, p); err != nil {
		c.logger.Warn("status cache write", zap.Error(err), zap.String("correlation_id", p.CorrelationID))
	}
}

const redisKeyPrefix = "payments:status:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, correlationID string) (*payment.PendingPayment, bool, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+correlationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p payment.PendingPayment
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (r *RedisCache) Set(ctx context.Context, p *payment.PendingPayment) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+p.CorrelationID, b, r.ttl).Err()
}
