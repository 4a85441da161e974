package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces backend keys in Redis.
const DefaultRedisPrefix = "tc:c:"

const (
	redisFieldData     = "d"
	redisFieldModified = "m"
	redisScanCount     = 100
)

// RedisConfig configures a RedisBackend built by the registry.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Prefix       string        `mapstructure:"prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	Policy Policy `mapstructure:",squash"`
}

// NewRedisClient creates a client from config. Default address: localhost:6379
func NewRedisClient(config RedisConfig) *redis.Client {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Username:     config.Username,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// RedisBackend stores entries as Redis hashes with native key expiry.
type RedisBackend struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	policy     Policy
	now        func() time.Time
}

// NewRedisBackend creates a Redis-backed backend. The client stays owned by
// the caller: Close leaves it open.
// prefix should be unique per logical cache, e.g. "tc:c:site42:".
func NewRedisBackend(client redis.UniversalClient, prefix string, policy Policy) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		policy: policy,
		now:    time.Now,
	}
}

// Load retrieves a payload. Redis evicts expired keys itself, so
// skipValidity has no effect.
func (b *RedisBackend) Load(ctx context.Context, key string, _ bool) ([]byte, bool, error) {
	data, err := b.client.HGet(ctx, b.prefix+key, redisFieldData).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: redis load: %w", err)
	}
	return data, true, nil
}

// Test returns the last-modified time of an entry.
func (b *RedisBackend) Test(ctx context.Context, key string) (time.Time, bool, error) {
	ms, err := b.client.HGet(ctx, b.prefix+key, redisFieldModified).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("cache: redis test: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Save stores data and modification time atomically. Tags are ignored.
func (b *RedisBackend) Save(ctx context.Context, key string, data []byte, _ []string, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	k := b.prefix + key
	effective := b.policy.EffectiveTTL(ttl)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, redisFieldData, data, redisFieldModified, b.now().UnixMilli())
		if effective > 0 {
			pipe.PExpire(ctx, k, effective)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: redis save: %w", err)
	}
	return nil
}

// Remove deletes key. Idempotent - no error on miss.
func (b *RedisBackend) Remove(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache: redis remove: %w", err)
	}
	return nil
}

// Clean supports CleanAll and CleanOld. CleanOld is a no-op because Redis
// expires keys natively.
func (b *RedisBackend) Clean(ctx context.Context, mode CleanMode, _ []string) error {
	switch mode {
	case CleanAll:
		return b.scan(ctx, func(keys []string) error {
			return b.client.Del(ctx, keys...).Err()
		})
	case CleanOld:
		return nil
	default:
		return ErrUnsupportedCleanMode
	}
}

// Touch extends the lifetime of an entry by extra.
func (b *RedisBackend) Touch(ctx context.Context, key string, extra time.Duration) (bool, error) {
	k := b.prefix + key
	remaining, err := b.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis touch: %w", err)
	}

	switch {
	case remaining == -2:
		// key does not exist
		return false, nil
	case remaining < 0:
		// no expiry set
		return true, nil
	}

	ok, err := b.client.PExpire(ctx, k, remaining+extra).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis touch: %w", err)
	}
	return ok, nil
}

// Keys returns all keys under the backend prefix.
func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var out []string
	err := b.scan(ctx, func(keys []string) error {
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, b.prefix))
		}
		return nil
	})
	return out, err
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying client if the backend created it.
func (b *RedisBackend) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}

func (b *RedisBackend) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("cache: redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return fmt.Errorf("cache: redis scan: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var (
	_ Backend   = (*RedisBackend)(nil)
	_ Toucher   = (*RedisBackend)(nil)
	_ KeyLister = (*RedisBackend)(nil)
	_ Pinger    = (*RedisBackend)(nil)
)
