package monitor

import (
	"time"

	"github.com/technosupport/slothunter/internal/license"
	"github.com/technosupport/slothunter/internal/protocol"
)

// Config is the effective monitoring configuration, persisted under
// monitoringConfig.
type Config struct {
	CheckIntervalMinutes int    `json:"checkIntervalMinutes"`
	TargetURL            string `json:"targetUrl,omitempty"`
	NotificationSound    bool   `json:"notificationSound"`
}

const DefaultCheckIntervalMinutes = 5

func DefaultConfig() Config {
	return Config{CheckIntervalMinutes: DefaultCheckIntervalMinutes, NotificationSound: true}
}

// Merge applies the fields present in u. Omitted fields keep their value.
func (c Config) Merge(u *protocol.ConfigUpdate) Config {
	if u == nil {
		return c
	}
	if u.CheckIntervalMinutes > 0 {
		c.CheckIntervalMinutes = u.CheckIntervalMinutes
	}
	if u.TargetURL != "" {
		c.TargetURL = u.TargetURL
	}
	if u.NotificationSound != nil {
		c.NotificationSound = *u.NotificationSound
	}
	return c
}

func (c Config) interval() time.Duration {
	m := c.CheckIntervalMinutes
	if m <= 0 {
		m = DefaultCheckIntervalMinutes
	}
	return time.Duration(m) * time.Minute
}

// Status is the GET_STATUS view.
type Status struct {
	IsMonitoring        bool          `json:"isMonitoring"`
	HasLicense          bool          `json:"hasLicense"`
	SlotsFound          int           `json:"slotsFound"`
	ChecksCount         int           `json:"checksCount"`
	TotalChecks         int           `json:"totalChecks"`
	MonitoringStartedAt *time.Time    `json:"monitoringStartedAt,omitempty"`
	MonitoringStoppedAt *time.Time    `json:"monitoringStoppedAt,omitempty"`
	LastCheckAt         *time.Time    `json:"lastCheckAt,omitempty"`
	LastSlotFoundAt     *time.Time    `json:"lastSlotFoundAt,omitempty"`
	LastSlotURL         string        `json:"lastSlotUrl,omitempty"`
	Config              Config        `json:"config"`
	License             *license.Info `json:"license,omitempty"`
	ConfigVersion       string        `json:"configVersion,omitempty"`
}
