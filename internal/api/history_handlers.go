package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/technosupport/slothunter/internal/journal"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History lists journaled coordinator events. *journal.Service satisfies it.
type History interface {
	Recent(ctx context.Context, eventType string, limit int) ([]journal.Entry, error)
}

type HistoryHandler struct {
	History History
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "event journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = min(v, maxHistoryLimit)
		}
	}

	entries, err := h.History.Recent(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
