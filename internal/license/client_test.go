package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/slothunter/internal/fingerprint"
)

var testPair = fingerprint.Pair{Browser: "BFP-0123456789abcdef", Hardware: "HFP-fedcba9876543210"}

func TestClient_Activate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/extension/activate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req activateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SH-ABCD-1234-EFGH-5678", req.LicenseKey)
		assert.Equal(t, testPair.Browser, req.BrowserFingerprint)
		assert.Equal(t, testPair.Hardware, req.HardwareFingerprint)

		w.Write([]byte(`{"success":true,"data":{"planType":"monthly","expiresAt":"2027-01-01T00:00:00Z","accessToken":"at","refreshToken":"rt"}}`))
	}))
	defer srv.Close()

	act, err := NewClient(srv.URL, time.Second).Activate(context.Background(), "SH-ABCD-1234-EFGH-5678", testPair)
	require.NoError(t, err)
	assert.Equal(t, "monthly", act.License.PlanType)
	require.NotNil(t, act.License.ExpiresAt)
	assert.Equal(t, 2027, act.License.ExpiresAt.Year())
	assert.Equal(t, Tokens{AccessToken: "at", RefreshToken: "rt"}, act.Tokens)
}

func TestClient_ActivateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"License already in use"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Activate(context.Background(), "SH-ABCD-1234-EFGH-5678", testPair)
	var ae *ActivationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "License already in use", ae.Message)
}

func TestClient_ActivateDefaultMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Activate(context.Background(), "SH-ABCD-1234-EFGH-5678", testPair)
	assert.EqualError(t, err, "Activation failed")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.Activate(context.Background(), "SH-ABCD-1234-EFGH-5678", testPair)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)

	ok, err := c.Status(context.Background(), "at")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want bool
	}{
		{"active", 200, `{"success":true,"data":{"status":"ACTIVE"}}`, true},
		{"suspended", 200, `{"success":true,"data":{"status":"SUSPENDED"}}`, false},
		{"not success", 200, `{"success":false}`, false},
		{"unauthorized", 401, `{"success":true,"data":{"status":"ACTIVE"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ok, err := NewClient(srv.URL, time.Second).Status(context.Background(), "at")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 20*time.Millisecond).Status(context.Background(), "at")
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestClient_LatestConfigAndHeartbeat(t *testing.T) {
	var beat HeartbeatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/config/latest":
			w.Write([]byte(`{"success":true,"data":{"version":"v7","selectors":[]}}`))
		case "/api/extension/heartbeat":
			json.NewDecoder(r.Body).Decode(&beat)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	rc, err := c.LatestConfig(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "v7", rc.Version)
	assert.JSONEq(t, `{"version":"v7","selectors":[]}`, string(rc.Data))

	require.NoError(t, c.Heartbeat(context.Background(), "at", HeartbeatPayload{ChecksCount: 3}))
	assert.Equal(t, 3, beat.ChecksCount)
}
