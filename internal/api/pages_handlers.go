package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/slothunter/internal/detector"
	"github.com/technosupport/slothunter/internal/protocol"
)

const pageInfoTimeout = 3 * time.Second

type PagesHandler struct {
	Bus      protocol.Bus
	Registry *detector.Registry
}

// info asks the detector over the bus, falling back to the in-process
// snapshot when nothing answers.
func (h *PagesHandler) info(ctx context.Context, d *detector.Detector) protocol.PageInfo {
	if h.Bus == nil {
		return d.PageInfo()
	}
	ctx, cancel := context.WithTimeout(ctx, pageInfoTimeout)
	defer cancel()

	raw, err := h.Bus.Request(ctx, protocol.DetectorSubject(d.ID()), protocol.Message{Type: protocol.GetPageInfo})
	if err != nil {
		return d.PageInfo()
	}
	var pi protocol.PageInfo
	if err := json.Unmarshal(raw, &pi); err != nil {
		return d.PageInfo()
	}
	return pi
}

func (h *PagesHandler) List(w http.ResponseWriter, r *http.Request) {
	out := []protocol.PageInfo{}
	if h.Registry != nil {
		for _, id := range h.Registry.IDs() {
			if d, ok := h.Registry.Get(id); ok {
				out = append(out, h.info(r.Context(), d))
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Registry == nil {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	d, ok := h.Registry.Get(id)
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.info(r.Context(), d))
}
