package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheckOnce_ServingStatus(t *testing.T) {
	m := NewMonitor(Config{}, nil)
	var storeErr error
	m.Register("store", func(ctx context.Context) error { return storeErr })
	m.Register("bus", func(ctx context.Context) error { return nil })

	m.CheckOnce(context.Background())

	resp, err := m.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	storeErr = errors.New("redis down")
	m.CheckOnce(context.Background())

	resp, err = m.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = m.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "bus"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	snap := m.Snapshot()
	assert.False(t, snap["store"].Healthy)
	assert.Equal(t, "redis down", snap["store"].Error)
}

func TestHandler(t *testing.T) {
	m := NewMonitor(Config{}, nil)
	healthy := true
	m.Register("store", func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	m.CheckOnce(context.Background())
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	healthy = false
	m.CheckOnce(context.Background())
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestStartStop(t *testing.T) {
	m := NewMonitor(Config{}, nil)
	m.Register("store", func(ctx context.Context) error { return nil })
	m.Start()
	m.Stop()
	m.Stop()
}
