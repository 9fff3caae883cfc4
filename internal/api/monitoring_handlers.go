package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/technosupport/slothunter/internal/protocol"
)

type MonitoringHandler struct {
	Coordinator Dispatcher
}

// Start accepts an optional {"config": {...}} body.
func (h *MonitoringHandler) Start(w http.ResponseWriter, r *http.Request) {
	var p protocol.StartPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, protocol.Fail("invalid request body"))
		return
	}
	msg, err := protocol.NewMessage(protocol.StartMonitoring, p)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.Fail(err.Error()))
		return
	}
	writeResponse(w, h.Coordinator.Dispatch(r.Context(), msg))
}

func (h *MonitoringHandler) Stop(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Coordinator.Dispatch(r.Context(), protocol.Message{Type: protocol.StopMonitoring}))
}

func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Coordinator.Dispatch(r.Context(), protocol.Message{Type: protocol.GetStatus}))
}

func (h *MonitoringHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Coordinator.Dispatch(r.Context(), protocol.Message{Type: protocol.CheckNow}))
}
