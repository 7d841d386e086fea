package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisProvider is the key-value provider. Expiry uses native Redis TTL.
type RedisProvider struct {
	client redis.UniversalClient
	cfg    options
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider returns a Provider backed by Redis.
// The caller owns the client lifecycle.
func NewRedisProvider(client redis.UniversalClient, opts ...Option) *RedisProvider {
	return &RedisProvider{client: client, cfg: applyOptions(opts)}
}

func (p *RedisProvider) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, p.cfg.queryTimeout)
}

func (p *RedisProvider) prefixKey(key string) string {
	if p.cfg.prefix == "" {
		return key
	}
	return p.cfg.prefix + ":" + key
}

func (p *RedisProvider) Kind() Kind {
	return KindKeyValue
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := p.queryCtx(ctx)
	defer cancel()
	data, err := p.client.Get(qctx, p.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return data, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if ttlSeconds == 0 {
		return nil
	}
	var expiration time.Duration
	if ttlSeconds > 0 {
		expiration = time.Duration(ttlSeconds) * time.Second
	}
	qctx, cancel := p.queryCtx(ctx)
	defer cancel()
	if err := p.client.Set(qctx, p.prefixKey(key), value, expiration).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}
