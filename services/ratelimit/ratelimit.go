// Package ratelimit throttles sensitive endpoints (login, password reset) per client key.
package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/avsnarang/scholarise/core"
)

// Info describes the state of a key after a call to Allow.
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Info, error)
	Reset(ctx context.Context, key string) error
}

// New returns the redis limiter when redis is configured, the in-process one otherwise.
func New(conf *core.Config, logger core.Logger) (Limiter, func(), error) {
	limit, window := conf.RateLimit.Limit, conf.RateLimit.Window
	if conf.Redis.Addr == "" {
		lim, err := NewMemoryLimiter(limit, window)
		return lim, func() {}, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "pinging redis")
	}
	lim, err := NewRedisLimiter(client, limit, window, "scholarise:ratelimit:")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("closing redis client", err)
		}
	}
	return lim, cleanup, nil
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 {
		return errors.New("limit must be greater than 0")
	}
	if window <= 0 {
		return errors.New("window must be greater than 0")
	}
	return nil
}
