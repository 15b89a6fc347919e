package versioned

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store kept in a Redis hash per key, for deployments where the
// data directory is not durable. Each key lives at <prefix>:<key> with
// fields "content" and "mtime"; the set <prefix>:__keys indexes them.
type Redis struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	prefix string
	now    func() time.Time
}

// DialRedis parses redisURL, connects and pings. Stores built on the
// returned client with NewRedisWithClient share its connection pool.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisWithClient wraps an existing client. Several stores may share one
// client as long as their prefixes differ.
func NewRedisWithClient(ctx context.Context, client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		ctx:    ctx,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *Redis) hashKey(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) indexKey() string {
	return r.prefix + ":__keys"
}

func (r *Redis) Get(key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, err := r.client.HGet(r.ctx, r.hashKey(key), "content").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *Redis) Set(key string, content []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, _, err := r.stampLocked(key)
	if err != nil {
		return err
	}
	stamp := nextStamp(r.now(), prev)
	_, err = r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(r.ctx, r.hashKey(key), "content", content, "mtime", stamp)
		pipe.SAdd(r.ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(r.ctx, r.hashKey(key))
		pipe.SRem(r.ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Timestamp(key string) (int64, bool, error) {
	if err := ValidateKey(key); err != nil {
		return 0, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stampLocked(key)
}

func (r *Redis) stampLocked(key string) (int64, bool, error) {
	ts, err := r.client.HGet(r.ctx, r.hashKey(key), "mtime").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis timestamp %s: %w", key, err)
	}
	return ts, true, nil
}

func (r *Redis) Keys() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *Redis) keysLocked() ([]string, error) {
	keys, err := r.client.SMembers(r.ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Snapshot() (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, err := r.keysLocked()
	if err != nil {
		return nil, err
	}
	cmds := make([]*redis.StringCmd, len(keys))
	_, err = r.client.Pipelined(r.ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGet(r.ctx, r.hashKey(k), "content")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis snapshot: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, k := range keys {
		b, err := cmds[i].Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis snapshot %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}
