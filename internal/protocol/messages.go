// Package protocol defines the command envelopes exchanged between the
// coordinator, the detectors and the control surfaces, and the buses that
// carry them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	LicenseActivated   MessageType = "LICENSE_ACTIVATED"
	LicenseDeactivated MessageType = "LICENSE_DEACTIVATED"
	StartMonitoring    MessageType = "START_MONITORING"
	StopMonitoring     MessageType = "STOP_MONITORING"
	GetStatus          MessageType = "GET_STATUS"
	SlotsFound         MessageType = "SLOTS_FOUND"
	CheckNow           MessageType = "CHECK_NOW"

	// Sent to detectors.
	CheckSlots  MessageType = "CHECK_SLOTS"
	GetPageInfo MessageType = "GET_PAGE_INFO"
)

// Message is the envelope for every command.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload, which may be nil.
func NewMessage(t MessageType, payload any) (Message, error) {
	m := Message{Type: t}
	if payload == nil {
		return m, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return m, fmt.Errorf("encode %s payload: %w", t, err)
	}
	m.Payload = b
	return m, nil
}

// Decode unmarshals the payload into dst. An empty payload leaves dst as is.
func (m Message) Decode(dst any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Response is the coordinator's reply shape.
type Response struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
	Config       any    `json:"config,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func OK() Response { return Response{Success: true} }

func Fail(msg string) Response { return Response{Success: false, Error: msg} }

// JSON encodes r. Response always marshals.
func (r Response) JSON() json.RawMessage {
	b, _ := json.Marshal(r)
	return b
}

// StartPayload is the optional body of START_MONITORING.
type StartPayload struct {
	Config *ConfigUpdate `json:"config,omitempty"`
}

// ConfigUpdate carries only the monitoring fields a caller wants changed.
type ConfigUpdate struct {
	CheckIntervalMinutes int    `json:"checkIntervalMinutes,omitempty"`
	TargetURL            string `json:"targetUrl,omitempty"`
	NotificationSound    *bool  `json:"notificationSound,omitempty"`
}

// Slot is one piece of evidence for an open appointment.
type Slot struct {
	Text string `json:"text"`
	Date string `json:"date,omitempty"`
}

// DetectionResult is the SLOTS_FOUND payload.
type DetectionResult struct {
	Count     int       `json:"count"`
	URL       string    `json:"url"`
	Slots     []Slot    `json:"slots"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckSlotsResponse is a detector's reply to CHECK_SLOTS.
type CheckSlotsResponse struct {
	Status    string `json:"status"`
	SlotCount int    `json:"slotCount"`
}

// PageInfo is a detector's reply to GET_PAGE_INFO.
type PageInfo struct {
	ID            string `json:"id,omitempty"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	IsBookingPage bool   `json:"isBookingPage"`
	LastSlotCount int    `json:"lastSlotCount"`
}
