package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normanking/switchboard/internal/dispatch"
)

// DefaultRedisPrefix namespaces response keys.
const DefaultRedisPrefix = "switchboard:response:"

// RedisConfig holds the connection settings of a RedisResponses store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces keys; DefaultRedisPrefix when empty.
	Prefix string

	// Retention sets a TTL on every key when positive.
	Retention time.Duration
}

// RedisResponses keeps answers as Redis hashes, one per query.
type RedisResponses struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

var _ ResponseStore = (*RedisResponses)(nil)

// NewRedisResponses connects to Redis and verifies the connection.
func NewRedisResponses(ctx context.Context, cfg RedisConfig) (*RedisResponses, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisResponses{rdb: rdb, prefix: prefix, retention: cfg.Retention}, nil
}

func (r *RedisResponses) key(query string) string {
	return r.prefix + dispatch.CacheKey("response", query)
}

func (r *RedisResponses) Lookup(ctx context.Context, query string) (Response, bool, error) {
	key := r.key(query)
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Response{}, false, fmt.Errorf("lookup response: %w", err)
	}
	if len(fields) == 0 {
		return Response{}, false, nil
	}

	hits, err := r.rdb.HIncrBy(ctx, key, "hits", 1).Result()
	if err != nil {
		return Response{}, false, fmt.Errorf("count hit: %w", err)
	}

	conf, _ := strconv.ParseFloat(fields["confidence"], 64)
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return Response{
		Query:      fields["query"],
		Response:   fields["response"],
		Handler:    fields["handler"],
		Confidence: conf,
		Hits:       hits,
		CreatedAt:  time.UnixMilli(created),
	}, true, nil
}

func (r *RedisResponses) Save(ctx context.Context, resp Response) error {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now()
	}
	q := dispatch.NormalizeQuery(resp.Query)
	key := r.key(q)

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"query", q,
			"response", resp.Response,
			"handler", resp.Handler,
			"confidence", strconv.FormatFloat(resp.Confidence, 'f', -1, 64),
			"hits", 0,
			"created_at", resp.CreatedAt.UnixMilli(),
		)
		if r.retention > 0 {
			p.Expire(ctx, key, r.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

// scan calls fn for every key under the prefix.
func (r *RedisResponses) scan(ctx context.Context, fn func(key string) error) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisResponses) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	cutoff := before.UnixMilli()
	err := r.scan(ctx, func(key string) error {
		created, err := r.rdb.HGet(ctx, key, "created_at").Int64()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if created < cutoff {
			n, err := r.rdb.Del(ctx, key).Result()
			removed += n
			return err
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("prune responses: %w", err)
	}
	return removed, nil
}

func (r *RedisResponses) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.scan(ctx, func(string) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

func (r *RedisResponses) Clear(ctx context.Context) (int64, error) {
	var keys []string
	if err := r.scan(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("clear responses: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear responses: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (r *RedisResponses) Close() error {
	return r.rdb.Close()
}
