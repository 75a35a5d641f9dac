package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pharmref-mcp-server/internal/metrics"
)

// RedisConfig configures the Redis tier.
type RedisConfig struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
	PoolSize  int
}

// Redis is a shared cache tier. Calls go through a circuit breaker so an
// unreachable server degrades to cache misses instead of slow lookups.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	prefix  string
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedis parses the URL and builds the client. It does not dial; the
// breaker absorbs connection failures on first use.
func NewRedis(cfg RedisConfig, logger *logrus.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pharmref:"
	}
	return NewRedisWithClient(redis.NewClient(opts), cfg.KeyPrefix, cfg.TTL, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *logrus.Logger) *Redis {
	return &Redis{
		client:  client,
		breaker: NewBreaker("redis-cache", logger),
		prefix:  prefix,
		ttl:     ttl,
		logger:  logger,
	}
}

// NewBreaker returns the breaker settings shared by the Redis-backed
// components: trip after three requests with 60% failures, retry after 30s.
func NewBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.breaker.Execute(func() (interface{}, error) {
		b, err := r.client.Get(ctx, r.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is not a backend failure.
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Debug("Redis cache lookup failed")
		metrics.RecordCacheLookup("redis", false)
		return nil, false
	}
	b, _ := v.([]byte)
	metrics.RecordCacheLookup("redis", b != nil)
	return b, b != nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.key(key), value, r.ttl).Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Debug("Redis cache write failed")
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, full...).Err()
	})
	if err != nil {
		r.logger.WithError(err).Warn("Redis cache delete failed")
	}
}

// Purge removes every key under the prefix.
func (r *Redis) Purge(ctx context.Context) {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, nil
		}
		return nil, r.client.Del(ctx, batch...).Err()
	})
	if err != nil {
		r.logger.WithError(err).Warn("Redis cache purge failed")
	}
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
