package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "guard:rl"

// Redis is a fixed-window limiter backed by Redis, so that several server
// instances share one quota per client. Each identity is a counter key that
// expires with its window. Redis errors are logged and treated as
// "not limited".
type Redis struct {
	client goredis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	logger *zap.Logger
}

// RedisOption configures a Redis limiter.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces the counter keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.TrimSpace(prefix); p != "" {
			r.prefix = p
		}
	}
}

// WithRedisWindow overrides the window length.
func WithRedisWindow(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRedis creates a limiter admitting limit requests per window per identity.
func NewRedis(client goredis.UniversalClient, limit int, logger *zap.Logger, opts ...RedisOption) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Redis{
		client: client,
		limit:  limit,
		window: Window,
		prefix: defaultKeyPrefix,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(id string) string {
	return r.prefix + ":" + id
}

func (r *Redis) IsLimited(ctx context.Context, id string) bool {
	return r.Count(ctx, id) >= r.limit
}

func (r *Redis) Record(ctx context.Context, id string) {
	key := r.key(id)
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Warn("rate limit record failed", zap.String("client_id", id), zap.Error(err))
		return
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, key, r.window).Err(); err != nil {
			r.logger.Warn("rate limit expire failed", zap.String("client_id", id), zap.Error(err))
		}
	}
}

func (r *Redis) SecondsUntilReset(ctx context.Context, id string) int {
	key := r.key(id)
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		r.logger.Warn("rate limit ttl lookup failed", zap.String("client_id", id), zap.Error(err))
		return int(r.window / time.Second)
	}
	// -1 means the key lost its expiry (INCR landed but PEXPIRE did not).
	// Re-arm it so the counter cannot live forever.
	if ttl == -1 {
		_ = r.client.PExpire(ctx, key, r.window).Err()
		return int(r.window / time.Second)
	}
	if ttl <= 0 {
		return int(r.window / time.Second)
	}
	return ceilSeconds(ttl)
}

func (r *Redis) Count(ctx context.Context, id string) int {
	v, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0
	}
	if err != nil {
		r.logger.Warn("rate limit lookup failed", zap.String("client_id", id), zap.Error(err))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (r *Redis) Limit() int { return r.limit }
