package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a Cache shared through a Redis server. Expiry is delegated to
// Redis key TTLs. Redis failures are logged and behave as misses.
type Redis struct {
	rc     *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewRedis returns a Redis cache whose keys are namespaced under prefix.
func NewRedis(rc *goredis.Client, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if prefix == "" {
		prefix = "shelf:cache"
	}
	return &Redis{rc: rc, prefix: prefix, logger: logger}
}

func (r *Redis) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rc.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) {
	if err := r.rc.Set(ctx, r.redisKey(key), value, TTL).Err(); err != nil {
		r.logger.Warn("cache put failed", "key", key, "error", err)
	}
}

func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) {
	pattern := r.redisKey(escapeGlob(prefix)) + "*"
	iter := r.rc.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("cache scan failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.rc.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("cache invalidate failed", "prefix", prefix, "error", err)
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
