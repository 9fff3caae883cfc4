// Package ratelimit is a Redis fixed-window counter. It throttles page
// fetches per host, so several daemons sharing one Redis stay polite, and
// control API callers per IP.
package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Decision struct {
	Limit      int
	Remaining  int
	Reset      time.Time // When the window resets
	RetryAfter time.Duration
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

// INCR and set expiry on first hit, then report the remaining TTL.
var windowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("PTTL", KEYS[1])
	return {current, ttl}
`)

type Limiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewLimiter(client *redis.Client, prefix string) *Limiter {
	if prefix == "" {
		prefix = "slothunter:rl:"
	}
	return &Limiter{client: client, prefix: prefix, now: time.Now}
}

// HostKey reduces a page URL to the key its fetches are counted under.
func HostKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return strings.ToLower(u.Host)
}

// Allow counts one fetch against key. A Rate of zero disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string, cfg LimitConfig) (*Decision, error) {
	if cfg.Rate <= 0 || cfg.Window <= 0 {
		return &Decision{Allowed: true, Remaining: -1}, nil
	}

	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, cfg.Window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return nil, ErrRedisUnavailable
	}
	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = cfg.Window
	}

	remaining := cfg.Rate - count
	if remaining < 0 {
		remaining = 0
	}

	d := &Decision{
		Limit:     cfg.Rate,
		Remaining: remaining,
		Reset:     l.now().Add(ttl),
		Allowed:   count <= cfg.Rate,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Wait blocks until a fetch against key is allowed or ctx ends. Redis
// failures are returned so the caller can decide to fail open.
func (l *Limiter) Wait(ctx context.Context, key string, cfg LimitConfig) error {
	for {
		d, err := l.Allow(ctx, key, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		t := time.NewTimer(d.RetryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ErrRateLimitExceeded, ctx.Err())
		case <-t.C:
		}
	}
}
