package middleware

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/technosupport/slothunter/internal/ratelimit"
)

// RateLimitMiddleware throttles control API callers per client IP.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	limit   ratelimit.LimitConfig
	logger  *slog.Logger
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, limit ratelimit.LimitConfig, logger *slog.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitMiddleware{limiter: l, limit: limit, logger: logger}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.limit.Rate <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := m.limiter.Allow(r.Context(), "api:"+clientIP(r), m.limit)
		switch {
		case errors.Is(err, ratelimit.ErrRedisUnavailable):
			// Fail open: the API is local and Redis outages are reported by health.
			RecordRedisError()
			m.logger.Warn("rate limit check failed open", "error", err)
			next.ServeHTTP(w, r)
			return
		case err != nil:
			m.logger.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		writeRateLimitHeaders(w, decision)
		if !decision.Allowed {
			RecordRateLimit("rejected")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		RecordRateLimit("allowed")
		next.ServeHTTP(w, r)
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
	}
}
