package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// sliding window log: one sorted-set member per accepted request, scored by its timestamp
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, ARGV[1])
	redis.call('EXPIRE', key, window)
	return {1, current + 1}
end
return {0, current}
`)

type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Info, error) {
	now := l.now()
	secs := int(l.window.Seconds())
	if secs < 1 {
		secs = 1
	}

	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixNano(),
		now.Add(-l.window).UnixNano(),
		l.limit,
		secs,
	).Int64Slice()
	if err != nil {
		return Info{}, errors.Wrap(err, "running rate limit script")
	}
	if len(res) != 2 {
		return Info{}, errors.New("unexpected rate limit script result")
	}

	remaining := l.limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
		Allowed:   res[0] == 1,
	}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return errors.Wrap(l.client.Del(ctx, l.prefix+key).Err(), "resetting rate limit")
}
