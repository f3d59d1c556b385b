package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/memograph/memory"
)

// Retry policy for backend commands.
const (
	retryAttempts    = 3
	retryBaseBackoff = 50 * time.Millisecond
	retryMaxBackoff  = 2 * time.Second
)

// RedisClient implements Client over a go-redis connection.
type RedisClient struct {
	rdb *redis.Client
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient connects to the backend at url (redis:// form) and verifies
// the connection with a ping. An unreachable backend is a Misconfigured
// error.
func NewRedisClient(ctx context.Context, url string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, memory.WrapError(memory.KindMisconfigured, "invalid backend url", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, memory.WrapError(memory.KindMisconfigured, "backend unreachable", err)
	}
	return &RedisClient{rdb: rdb}, nil
}

// NewRedisClientFromAddr connects to a bare host:port address. Used by tests
// against an embedded server.
func NewRedisClientFromAddr(addr string) *RedisClient {
	return &RedisClient{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Close releases the backend connection.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// retryable reports whether a command failure is worth reissuing: dropped
// connections and replica READONLY responses, but never context
// cancellation or protocol-level errors.
func retryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "READONLY") || strings.Contains(msg, "connection refused")
}

// withRetry runs fn with capped exponential backoff. Exhausted retries
// surface as Transient; non-retryable failures as Internal.
func (c *RedisClient) withRetry(ctx context.Context, fn func() error) error {
	backoff := retryBaseBackoff
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return memory.WrapError(memory.KindInternal, "backend command failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}
	return memory.WrapError(memory.KindTransient, "backend retries exhausted", err)
}

// HSet writes hash fields.
func (c *RedisClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.HSet(ctx, key, toArgs(fields)...).Err()
	})
}

// HGetAll reads every field of a hash. A missing key yields an empty map.
func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.HGetAll(ctx, key).Result()
		return err
	})
	return out, err
}

// Del removes keys.
func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.Del(ctx, keys...).Err()
	})
}

// SAdd adds members to a set.
func (c *RedisClient) SAdd(ctx context.Context, key string, members ...string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.SAdd(ctx, key, toAny(members)...).Err()
	})
}

// SRem removes members from a set.
func (c *RedisClient) SRem(ctx context.Context, key string, members ...string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.SRem(ctx, key, toAny(members)...).Err()
	})
}

// SMembers returns every member of a set.
func (c *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.SMembers(ctx, key).Result()
		return err
	})
	return out, err
}

// SUnion returns the union of the given sets.
func (c *RedisClient) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.SUnion(ctx, keys...).Result()
		return err
	})
	return out, err
}

// SCard returns a set's cardinality.
func (c *RedisClient) SCard(ctx context.Context, key string) (int64, error) {
	var out int64
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.SCard(ctx, key).Result()
		return err
	})
	return out, err
}

// ZAdd adds one scored member to a sorted set.
func (c *RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

// ZRem removes members from a sorted set.
func (c *RedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.ZRem(ctx, key, toAny(members)...).Err()
	})
}

// ZRange returns members by ascending rank.
func (c *RedisClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.ZRange(ctx, key, start, stop).Result()
		return err
	})
	return out, err
}

// ZRevRange returns members by descending rank.
func (c *RedisClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.ZRevRange(ctx, key, start, stop).Result()
		return err
	})
	return out, err
}

// ZRangeByScore returns members with min <= score <= max, ascending.
func (c *RedisClient) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min),
			Max: formatScore(max),
		}).Result()
		return err
	})
	return out, err
}

// ZRevRangeByScore returns members with min <= score <= max, descending.
func (c *RedisClient) ZRevRangeByScore(ctx context.Context, key string, max, min float64) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min),
			Max: formatScore(max),
		}).Result()
		return err
	})
	return out, err
}

// ZScore returns a member's score and whether the member exists.
func (c *RedisClient) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var score float64
	var found bool
	err := c.withRetry(ctx, func() error {
		v, err := c.rdb.ZScore(ctx, key, member).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		score, found = v, true
		return nil
	})
	return score, found, err
}

// ZCard returns a sorted set's cardinality.
func (c *RedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	var out int64
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.rdb.ZCard(ctx, key).Result()
		return err
	})
	return out, err
}

// ZRemRangeByRank removes members by rank range.
func (c *RedisClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.ZRemRangeByRank(ctx, key, start, stop).Err()
	})
}

// Get reads a string key, reporting whether the key exists.
func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := c.withRetry(ctx, func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

// Set writes a string key with optional TTL (0 means no expiration).
func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// Exists reports whether a key is present.
func (c *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	var out bool
	err := c.withRetry(ctx, func() error {
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		out = n > 0
		return nil
	})
	return out, err
}

// Expire sets a key's TTL.
func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.withRetry(ctx, func() error {
		return c.rdb.Expire(ctx, key, ttl).Err()
	})
}

// Pipeline returns a staged batch against this client.
func (c *RedisClient) Pipeline() Pipeline {
	return &redisPipeline{client: c}
}

// redisPipeline stages commands as closures and replays them onto a go-redis
// pipeliner at Exec time, so the caller's context governs the whole batch.
type redisPipeline struct {
	client *RedisClient
	ops    []func(ctx context.Context, pipe redis.Pipeliner)
}

func (p *redisPipeline) HSet(key string, fields map[string]string) {
	args := toArgs(fields)
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, args...)
	})
}

func (p *redisPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, keys...)
	})
}

func (p *redisPipeline) SAdd(key string, members ...string) {
	m := toAny(members)
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, key, m...)
	})
}

func (p *redisPipeline) SRem(key string, members ...string) {
	m := toAny(members)
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, key, m...)
	})
}

func (p *redisPipeline) ZAdd(key string, score float64, member string) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	})
}

func (p *redisPipeline) ZRem(key string, members ...string) {
	m := toAny(members)
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZRem(ctx, key, m...)
	})
}

func (p *redisPipeline) ZRemRangeByRank(key string, start, stop int64) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZRemRangeByRank(ctx, key, start, stop)
	})
}

func (p *redisPipeline) Set(key, value string, ttl time.Duration) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, key, value, ttl)
	})
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Expire(ctx, key, ttl)
	})
}

// Exec issues the staged commands in order. The batch is not a transaction:
// commands applied before a failure stay applied.
func (p *redisPipeline) Exec(ctx context.Context) error {
	if len(p.ops) == 0 {
		return nil
	}
	return p.client.withRetry(ctx, func() error {
		pipe := p.client.rdb.Pipeline()
		for _, op := range p.ops {
			op(ctx, pipe)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func toArgs(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func toAny(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

func formatScore(v float64) string {
	// strconv keeps full float precision; timestamps fit without loss.
	return strconv.FormatFloat(v, 'f', -1, 64)
}
