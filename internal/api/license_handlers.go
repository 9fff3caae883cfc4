package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/technosupport/slothunter/internal/license"
	"github.com/technosupport/slothunter/internal/protocol"
)

const (
	connectionError = "Connection error. Please try again."
	licenseRequired = "License required"
)

// LicenseService is the part of *license.Service the handlers use.
type LicenseService interface {
	Activate(ctx context.Context, rawKey string) (*license.Activation, error)
	Load(ctx context.Context) (*license.License, license.Tokens, error)
	Gate(ctx context.Context) bool
	ValidateErr(ctx context.Context) (bool, error)
}

type LicenseHandler struct {
	License     LicenseService
	Coordinator Dispatcher
	Logger      *slog.Logger
}

type activateRequest struct {
	LicenseKey string `json:"licenseKey"`
}

// LicenseStatusResponse never carries the full key.
type LicenseStatusResponse struct {
	HasLicense bool          `json:"hasLicense"`
	Valid      bool          `json:"valid"`
	License    *license.Info `json:"license,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Fail("invalid request body"))
		return
	}

	act, err := h.License.Activate(r.Context(), req.LicenseKey)
	var rejected *license.ActivationError
	switch {
	case errors.Is(err, license.ErrKeyRequired), errors.Is(err, license.ErrInvalidKeyFormat):
		writeJSON(w, http.StatusBadRequest, protocol.Fail(err.Error()))
		return
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusForbidden, protocol.Fail(rejected.Message))
		return
	case errors.Is(err, license.ErrRemoteUnavailable):
		h.Logger.Warn("activation failed", "error", err)
		writeJSON(w, http.StatusBadGateway, protocol.Fail(connectionError))
		return
	case err != nil:
		h.Logger.Error("activation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, protocol.Fail("Activation failed"))
		return
	}

	h.Coordinator.Dispatch(r.Context(), protocol.Message{Type: protocol.LicenseActivated})
	writeJSON(w, http.StatusOK, protocol.Response{Success: true, Data: act.License.Info()})
}

func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Coordinator.Dispatch(r.Context(), protocol.Message{Type: protocol.LicenseDeactivated}))
}

func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lic, _, err := h.License.Load(ctx)
	if err != nil {
		h.Logger.Error("load license", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, protocol.Fail("store unavailable"))
		return
	}

	resp := LicenseStatusResponse{HasLicense: h.License.Gate(ctx)}
	if lic != nil {
		info := lic.Info()
		resp.License = &info
	}
	if resp.HasLicense {
		valid, err := h.License.ValidateErr(ctx)
		switch {
		case errors.Is(err, license.ErrRemoteUnavailable):
			resp.Error = connectionError
		case err != nil:
			resp.Error = err.Error()
		}
		resp.Valid = valid
	}
	writeJSON(w, http.StatusOK, resp)
}
