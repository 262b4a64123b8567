package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores values as plain strings and keeps a score-0 sorted set of
// all keys so SCAN can walk them in byte order with ZRANGEBYLEX.
type Redis struct {
	client *redis.Client
	prefix string
	index  string
}

// NewRedis connects to cfg.Addr and pings the server
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client, prefix: cfg.Prefix, index: cfg.Prefix + "kvbench:index"}, nil
}

func (r *Redis) dataKey(key []byte) string {
	return r.prefix + "kv:" + string(key)
}

func (r *Redis) Put(ctx context.Context, key, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.dataKey(key), value, 0)
		pipe.ZAdd(ctx, r.index, redis.Z{Member: string(key)})
		return nil
	})
	return err
}

func (r *Redis) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Redis) Delete(ctx context.Context, key []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.dataKey(key))
		pipe.ZRem(ctx, r.index, string(key))
		return nil
	})
	return err
}

// Scan reads up to limit index members from start, then fetches their values
// in one MGET. Keys deleted in between are skipped.
func (r *Redis) Scan(ctx context.Context, start []byte, limit int) Iterator {
	if limit <= 0 {
		return &sliceIterator{}
	}
	keys, err := r.client.ZRangeByLex(ctx, r.index, &redis.ZRangeBy{
		Min:   "[" + string(start),
		Max:   "+",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return errIterator(err)
	}
	if len(keys) == 0 {
		return &sliceIterator{}
	}

	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = r.prefix + "kv:" + k
	}
	values, err := r.client.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return errIterator(err)
	}

	it := &sliceIterator{entries: make([]entry, 0, len(keys))}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		it.entries = append(it.entries, entry{key: []byte(keys[i]), value: []byte(s)})
	}
	return it
}

func (r *Redis) Close() error {
	return r.client.Close()
}
