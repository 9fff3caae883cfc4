package license

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/slothunter/internal/store"
)

func setupTestStore(t *testing.T) store.Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return store.NewRedisStore(client, "")
}

func newRemoteServer(t *testing.T, status *atomic.Value, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/extension/activate":
			w.Write([]byte(`{"success":true,"data":{"planType":"lifetime","accessToken":"at","refreshToken":"rt"}}`))
		case "/api/licenses/status":
			hits.Add(1)
			w.Write([]byte(`{"success":true,"data":{"status":"` + status.Load().(string) + `"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_ActivateAndGate(t *testing.T) {
	var status atomic.Value
	status.Store("ACTIVE")
	var hits atomic.Int32
	srv := newRemoteServer(t, &status, &hits)

	st := setupTestStore(t)
	svc := NewService(st, NewClient(srv.URL, time.Second), Options{Fingerprints: testPair})
	ctx := context.Background()

	assert.False(t, svc.Gate(ctx))

	_, err := svc.Activate(ctx, "")
	assert.ErrorIs(t, err, ErrKeyRequired)
	_, err = svc.Activate(ctx, "SH-NOPE")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	act, err := svc.Activate(ctx, "sh-abcd-1234-efgh-5678")
	require.NoError(t, err)
	assert.Equal(t, "SH-ABCD-1234-EFGH-5678", act.License.Key)
	assert.Nil(t, act.License.ExpiresAt)
	assert.True(t, svc.Gate(ctx))

	lic, toks, err := svc.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, lic)
	assert.Equal(t, "lifetime", lic.PlanType)
	assert.Equal(t, "rt", toks.RefreshToken)

	require.NoError(t, svc.Deactivate(ctx))
	assert.False(t, svc.Gate(ctx))
	lic, _, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, lic)
}

func TestService_GateExpiredToken(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetMany(ctx, map[string]any{
		store.KeyLicense:      License{Key: "SH-ABCD-1234-EFGH-5678"},
		store.KeyAccessToken:  signedToken(t, time.Now().Add(-time.Hour)),
		store.KeyRefreshToken: "rt",
	}))

	svc := NewService(st, NewClient("http://127.0.0.1:0", time.Second), Options{})
	assert.False(t, svc.Gate(ctx))
}

func TestService_ValidateCached(t *testing.T) {
	var status atomic.Value
	status.Store("ACTIVE")
	var hits atomic.Int32
	srv := newRemoteServer(t, &status, &hits)

	svc := NewService(setupTestStore(t), NewClient(srv.URL, time.Second), Options{ValidationTTL: time.Hour})
	ctx := context.Background()
	_, err := svc.Activate(ctx, "SH-ABCD-1234-EFGH-5678")
	require.NoError(t, err)

	assert.True(t, svc.Validate(ctx))
	assert.True(t, svc.Validate(ctx))
	assert.Equal(t, int32(1), hits.Load())
}

func TestService_ValidateRemoteDown(t *testing.T) {
	var status atomic.Value
	status.Store("ACTIVE")
	var hits atomic.Int32
	srv := newRemoteServer(t, &status, &hits)

	st := setupTestStore(t)
	ctx := context.Background()
	_, err := NewService(st, NewClient(srv.URL, time.Second), Options{}).Activate(ctx, "SH-ABCD-1234-EFGH-5678")
	require.NoError(t, err)

	svc := NewService(st, NewClient("http://127.0.0.1:1", 100*time.Millisecond), Options{})
	assert.False(t, svc.Validate(ctx))
	_, err = svc.ValidateErr(ctx)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestRevalidator_DeactivatesOnRejection(t *testing.T) {
	var status atomic.Value
	status.Store("REVOKED")
	var hits atomic.Int32
	srv := newRemoteServer(t, &status, &hits)

	svc := NewService(setupTestStore(t), NewClient(srv.URL, time.Second), Options{})
	ctx := context.Background()
	_, err := svc.Activate(ctx, "SH-ABCD-1234-EFGH-5678")
	require.NoError(t, err)

	called := 0
	r := NewRevalidator(svc, time.Hour, func(context.Context) { called++ }, nil)
	r.Check(ctx)
	assert.Equal(t, 1, called)
}

func TestRevalidator_SkipsWhenUnreachable(t *testing.T) {
	var status atomic.Value
	status.Store("ACTIVE")
	var hits atomic.Int32
	srv := newRemoteServer(t, &status, &hits)

	st := setupTestStore(t)
	ctx := context.Background()
	_, err := NewService(st, NewClient(srv.URL, time.Second), Options{}).Activate(ctx, "SH-ABCD-1234-EFGH-5678")
	require.NoError(t, err)

	svc := NewService(st, NewClient("http://127.0.0.1:1", 100*time.Millisecond), Options{})
	called := 0
	r := NewRevalidator(svc, time.Hour, func(context.Context) { called++ }, nil)
	r.Check(ctx)
	assert.Equal(t, 0, called)
}
