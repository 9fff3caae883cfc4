package middleware

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_http_requests_total",
		Help: "Control API requests by method and status code.",
	}, []string{"method", "code"})

	rateLimitRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_http_rate_limit_total",
		Help: "Rate limit decisions for the control API.",
	}, []string{"result"})

	rateLimitRedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slothunter_http_rate_limit_redis_errors_total",
		Help: "Rate limit checks that failed open because Redis was unreachable.",
	})
)

func RecordRequest(method string, status int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func RecordRateLimit(result string) {
	rateLimitRequestsTotal.WithLabelValues(result).Inc()
}

func RecordRedisError() {
	rateLimitRedisErrorsTotal.Inc()
}
