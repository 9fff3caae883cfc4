package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetMonitoring(t *testing.T) {
	SetMonitoring(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(MonitoringActive))
	SetMonitoring(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(MonitoringActive))
}

func TestRecordLicenseRequest(t *testing.T) {
	before := testutil.ToFloat64(LicenseRequestsTotal.WithLabelValues("status", "error"))
	RecordLicenseRequest("status", errors.New("down"))
	assert.Equal(t, before+1, testutil.ToFloat64(LicenseRequestsTotal.WithLabelValues("status", "error")))
}

func TestHandler(t *testing.T) {
	SlotsFoundTotal.Add(0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "slothunter_slots_found_total"))
}
