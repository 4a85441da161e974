package tagindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces index keys in Redis.
const DefaultRedisPrefix = "tc:i:"

const maxWatchRetries = 8

// ErrConflict is returned when an optimistic Redis transaction keeps losing
// to concurrent writers.
var ErrConflict = errors.New("tagindex: concurrent modification")

// RedisIndex keeps three kinds of sets under a prefix:
//
//	<prefix>keys      every key that has a row
//	<prefix>k:<key>   tags of one key
//	<prefix>t:<tag>   keys carrying one tag
//
// Sets cannot hold duplicates, so Insert and InsertIfAbsent behave the same.
type RedisIndex struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
}

// NewRedisIndex creates a Redis-backed index. The client stays owned by the
// caller: Close leaves it open.
func NewRedisIndex(client redis.UniversalClient, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) allKey() string           { return r.prefix + "keys" }
func (r *RedisIndex) keyKey(key string) string { return r.prefix + "k:" + key }
func (r *RedisIndex) tagKey(tag string) string { return r.prefix + "t:" + tag }

// Exists reports whether key carries tag.
func (r *RedisIndex) Exists(ctx context.Context, key, tag string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.keyKey(key), tag).Result()
	if err != nil {
		return false, fmt.Errorf("tagindex: redis exists: %w", err)
	}
	return ok, nil
}

// Insert records the row.
func (r *RedisIndex) Insert(ctx context.Context, key, tag string) error {
	_, err := r.InsertIfAbsent(ctx, key, tag)
	return err
}

// InsertIfAbsent records the row in one MULTI/EXEC and reports whether it
// was new.
func (r *RedisIndex) InsertIfAbsent(ctx context.Context, key, tag string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	var added *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, r.keyKey(key), tag)
		pipe.SAdd(ctx, r.tagKey(tag), key)
		pipe.SAdd(ctx, r.allKey(), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tagindex: redis insert: %w", err)
	}
	return added.Val() > 0, nil
}

// DeleteByKey removes key from every set. The key's tag set is watched so a
// concurrent insert restarts the transaction.
func (r *RedisIndex) DeleteByKey(ctx context.Context, key string) error {
	kk := r.keyKey(key)
	txn := func(tx *redis.Tx) error {
		tags, err := tx.SMembers(ctx, kk).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, tag := range tags {
				pipe.SRem(ctx, r.tagKey(tag), key)
			}
			pipe.Del(ctx, kk)
			pipe.SRem(ctx, r.allKey(), key)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := r.client.Watch(ctx, txn, kk)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("tagindex: redis delete: %w", err)
	}
	return fmt.Errorf("tagindex: redis delete %q: %w", key, ErrConflict)
}

// FindKeysByTagIn returns the union of the tag sets.
func (r *RedisIndex) FindKeysByTagIn(ctx context.Context, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 {
		return []string{}, nil
	}
	setKeys := make([]string, len(tags))
	for i, tag := range tags {
		setKeys[i] = r.tagKey(tag)
	}
	keys, err := r.client.SUnion(ctx, setKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("tagindex: redis find: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// FindKeysByTagNotIn returns the all-keys set minus the tag sets.
func (r *RedisIndex) FindKeysByTagNotIn(ctx context.Context, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	setKeys := make([]string, 0, len(tags)+1)
	setKeys = append(setKeys, r.allKey())
	for _, tag := range tags {
		setKeys = append(setKeys, r.tagKey(tag))
	}
	keys, err := r.client.SDiff(ctx, setKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("tagindex: redis find: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear deletes every set under the prefix.
func (r *RedisIndex) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("tagindex: redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("tagindex: redis clear: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("tagindex: redis clear: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisIndex) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("tagindex: redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client if the index created it.
func (r *RedisIndex) Close() error {
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

var (
	_ Index    = (*RedisIndex)(nil)
	_ Upserter = (*RedisIndex)(nil)
	_ Pinger   = (*RedisIndex)(nil)
)
