package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method, path string
	body         map[string]any
}

type callLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *callLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.calls...)
}

func fakeDaemon(t *testing.T, replies map[string]string) *callLog {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		json.NewDecoder(r.Body).Decode(&rec.body)
		log.mu.Lock()
		log.calls = append(log.calls, rec)
		log.mu.Unlock()

		reply, ok := replies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if bytes.Contains([]byte(reply), []byte(`"success":false`)) {
			w.WriteHeader(http.StatusForbidden)
		}
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("SLOTHUNTER_ADDR", srv.URL)
	return log
}

func runCLI(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestActivate_NormalizesKey(t *testing.T) {
	log := fakeDaemon(t, map[string]string{
		"/api/v1/license/activate": `{"success":true,"data":{"key":"SH-ABCD-****-****-5678","planType":"monthly","expiresAt":"Lifetime"}}`,
	})

	code, out, _ := runCLI("activate", " sh-abcd-1234-efgh-5678 ")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "SH-ABCD-****-****-5678")
	calls := log.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "SH-ABCD-1234-EFGH-5678", calls[0].body["licenseKey"])
}

func TestActivate_InvalidKeyNeverSent(t *testing.T) {
	log := fakeDaemon(t, nil)
	code, _, errOut := runCLI("activate", "SH-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Invalid license key format")
	assert.Empty(t, log.all())
}

func TestStart_SendsOnlyGivenFields(t *testing.T) {
	log := fakeDaemon(t, map[string]string{
		"/api/v1/monitoring/start": `{"success":true,"config":{"checkIntervalMinutes":10,"notificationSound":false}}`,
	})

	code, out, _ := runCLI("start", "--interval", "10", "--sound=false")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "every 10 min")

	cfg := log.all()[0].body["config"].(map[string]any)
	assert.Equal(t, float64(10), cfg["checkIntervalMinutes"])
	assert.Equal(t, false, cfg["notificationSound"])
	assert.NotContains(t, cfg, "targetUrl")
}

func TestStart_LicenseRequired(t *testing.T) {
	fakeDaemon(t, map[string]string{
		"/api/v1/monitoring/start": `{"success":false,"error":"License required"}`,
	})
	code, _, errOut := runCLI("start")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "License required")
}

func TestStatus(t *testing.T) {
	fakeDaemon(t, map[string]string{
		"/api/v1/status": `{"success":true,"data":{"isMonitoring":true,"hasLicense":true,"slotsFound":3,"checksCount":7,"totalChecks":7,"config":{"checkIntervalMinutes":5,"notificationSound":true}}}`,
	})
	code, out, _ := runCLI("status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "Slots found:")
	assert.Contains(t, out, "3")
	assert.Contains(t, out, "never")
}

func TestPages(t *testing.T) {
	fakeDaemon(t, map[string]string{
		"/api/v1/pages": `[{"id":"vfs","url":"https://visa.vfsglobal.com/x","title":"t","isBookingPage":true,"lastSlotCount":2}]`,
	})
	code, out, _ := runCLI("pages")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "vfs")
	assert.Contains(t, out, "https://visa.vfsglobal.com/x")
}

func TestDetect_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><body><p>Next available appointment on 15-03-2025</p></body></html>`), 0o600))

	code, out, _ := runCLI("detect", "--mode", "pattern", path)
	require.Equal(t, 0, code)
	assert.Equal(t, "🎯 1 SLOT FOUND! - 15-03-2025\n", out)
}

func TestDetect_NoSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><body><p>No appointments available</p></body></html>`), 0o600))

	code, out, _ := runCLI("detect", path)
	require.Equal(t, 0, code)
	assert.Equal(t, "No slots found.\n", out)
}

func TestUsage(t *testing.T) {
	code, _, errOut := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, _ = runCLI("bogus")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI("activate")
	assert.Equal(t, 2, code)
}
