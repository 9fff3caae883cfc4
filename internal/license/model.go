package license

import (
	"encoding/json"
	"time"
)

// License is the activated key as persisted under the "license" key.
type License struct {
	Key         string     `json:"key"`
	PlanType    string     `json:"planType"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"` // nil means lifetime
	ActivatedAt time.Time  `json:"activatedAt"`
}

// Tokens are opaque bearer credentials returned by activation.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Activation is a successful activation response.
type Activation struct {
	License License
	Tokens  Tokens
}

// Info is the display form of a license.
type Info struct {
	Key       string `json:"key"` // masked
	PlanType  string `json:"planType"`
	ExpiresAt string `json:"expiresAt"`
}

func (l License) Info() Info {
	exp := "Lifetime"
	if l.ExpiresAt != nil {
		exp = l.ExpiresAt.Format("2006-01-02")
	}
	return Info{Key: MaskKey(l.Key), PlanType: l.PlanType, ExpiresAt: exp}
}

// RemoteConfig is the cached result of GET /api/config/latest.
type RemoteConfig struct {
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// HeartbeatPayload is sent on every check, fire-and-forget.
type HeartbeatPayload struct {
	BrowserFingerprint string    `json:"browserFingerprint"`
	IsMonitoring       bool      `json:"isMonitoring"`
	ChecksCount        int       `json:"checksCount"`
	SlotsFound         int       `json:"slotsFound"`
	Timestamp          time.Time `json:"timestamp"`
}

// Wire shapes.

type activateRequest struct {
	LicenseKey          string `json:"licenseKey"`
	BrowserFingerprint  string `json:"browserFingerprint"`
	HardwareFingerprint string `json:"hardwareFingerprint"`
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type activateData struct {
	PlanType     string     `json:"planType"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

type statusData struct {
	Status string `json:"status"`
}

type configData struct {
	Version string `json:"version"`
}
