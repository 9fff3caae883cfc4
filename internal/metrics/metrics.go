package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// All metrics are low-cardinality: page IDs come from config, never from URLs.

var (
	MonitoringActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slothunter_monitoring_active",
		Help: "1 while monitoring is running, 0 otherwise",
	})

	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_checks_total",
		Help: "Coordinator checks by trigger",
	}, []string{"trigger"}) // alarm, manual

	DetectorChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_detector_checks_total",
		Help: "Detector evaluations by outcome",
	}, []string{"page", "outcome"})

	SlotsFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slothunter_slots_found_total",
		Help: "Slots reported to the coordinator",
	})

	DetectorCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slothunter_detector_check_duration_seconds",
		Help:    "Time to evaluate a page",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
	}, []string{"page"})

	PageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_page_fetches_total",
		Help: "Page fetches by result",
	}, []string{"page", "result"}) // ok, error, throttled, cached

	LicenseRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_license_requests_total",
		Help: "Remote license calls by endpoint and result",
	}, []string{"endpoint", "result"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slothunter_notifications_total",
		Help: "Notifications delivered by result",
	}, []string{"result"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slothunter_event_subscribers",
		Help: "Connected event stream clients",
	})
)

func RecordDetectorCheck(page, outcome string, seconds float64) {
	DetectorChecksTotal.WithLabelValues(page, outcome).Inc()
	if outcome != "busy" && outcome != "inactive" {
		DetectorCheckDuration.WithLabelValues(page).Observe(seconds)
	}
}

func RecordLicenseRequest(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LicenseRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

func SetMonitoring(on bool) {
	if on {
		MonitoringActive.Set(1)
		return
	}
	MonitoringActive.Set(0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
