// Package storage defines the narrow capability interface over the
// key-value backend and its go-redis implementation. Engines depend on the
// Client interface only, so tests may substitute any redis-protocol server.
package storage

import (
	"context"
	"time"
)

// Client is the command surface the engines need. Every operation is
// side-effect-atomic per command; Pipeline stages a batch that is issued in
// order but is not a transaction.
type Client interface {
	// Hashes.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error

	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Sorted sets.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRevRangeByScore(ctx context.Context, key string, max, min float64) ([]string, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	// Strings.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline returns a staged batch sharing the command verbs above.
	Pipeline() Pipeline

	// Close releases the backend connection.
	Close() error
}

// Pipeline is a staged command batch. Exec issues the commands in order and
// fails on the first command error; already-applied commands are not rolled
// back, so callers treat indices as best-effort consistent.
type Pipeline interface {
	HSet(key string, fields map[string]string)
	Del(keys ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	ZAdd(key string, score float64, member string)
	ZRem(key string, members ...string)
	ZRemRangeByRank(key string, start, stop int64)
	Set(key, value string, ttl time.Duration)
	Expire(key string, ttl time.Duration)
	Exec(ctx context.Context) error
}
