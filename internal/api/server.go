// Package api is the daemon's HTTP control surface. Command endpoints
// translate into coordinator messages, so the CLI and the bus share one
// vocabulary.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/slothunter/internal/detector"
	"github.com/technosupport/slothunter/internal/metrics"
	"github.com/technosupport/slothunter/internal/middleware"
	"github.com/technosupport/slothunter/internal/notify"
	"github.com/technosupport/slothunter/internal/protocol"
)

// Dispatcher routes coordinator commands. *monitor.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg protocol.Message) protocol.Response
}

type Options struct {
	Coordinator Dispatcher
	License     LicenseService
	Bus         protocol.Bus
	Registry    *detector.Registry
	History     History      // nil when the journal is disabled
	Health      http.Handler // nil serves a bare 200
	Badge       *notify.MemoryBadge
	Events      *Hub

	RateLimit      *middleware.RateLimitMiddleware
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the control API.
func NewRouter(o Options) http.Handler {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	lic := &LicenseHandler{License: o.License, Coordinator: o.Coordinator, Logger: o.Logger}
	mon := &MonitoringHandler{Coordinator: o.Coordinator}
	pages := &PagesHandler{Bus: o.Bus, Registry: o.Registry}
	hist := &HistoryHandler{History: o.History}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(o.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(o.AllowedOrigins))

	// Health & Metrics
	if o.Health != nil {
		r.Handle("/healthz", o.Health)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if o.RateLimit != nil {
			r.Use(o.RateLimit.Handler)
		}

		r.Post("/license/activate", lic.Activate)
		r.Post("/license/deactivate", lic.Deactivate)
		r.Get("/license/status", lic.Status)

		r.Post("/monitoring/start", mon.Start)
		r.Post("/monitoring/stop", mon.Stop)
		r.Get("/status", mon.Status)
		r.Post("/check", mon.Check)

		r.Get("/pages", pages.List)
		r.Get("/pages/{id}", pages.Get)

		r.Get("/history", hist.List)

		r.Get("/badge", func(w http.ResponseWriter, r *http.Request) {
			var st notify.BadgeState
			if o.Badge != nil {
				st = o.Badge.State()
			}
			writeJSON(w, http.StatusOK, st)
		})

		if o.Events != nil {
			r.Get("/events", o.Events.ServeWS)
		}
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeResponse sends a coordinator response with a status code matching
// its outcome.
func writeResponse(w http.ResponseWriter, resp protocol.Response) {
	status := http.StatusOK
	if !resp.Success {
		switch resp.Error {
		case licenseRequired:
			status = http.StatusForbidden
		case "invalid payload":
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}
