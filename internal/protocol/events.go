package protocol

import "time"

// Coordinator event types, streamed to subscribers and journaled.
const (
	EventMonitoringStarted  = "monitoring.started"
	EventMonitoringStopped  = "monitoring.stopped"
	EventCheck              = "check"
	EventSlotsFound         = "slots.found"
	EventLicenseActivated   = "license.activated"
	EventLicenseDeactivated = "license.deactivated"
	EventConfigSynced       = "config.synced"
)

// Event is a state transition observed by the coordinator.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}
