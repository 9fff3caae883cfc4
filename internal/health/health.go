// Package health probes the daemon's dependencies and reports them over
// gRPC health checking and a JSON endpoint.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// Component is the latest result for one probe.
type Component struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor runs probes on an interval and publishes their status. The
// empty service name reflects all probes: serving only if each is healthy.
type Monitor struct {
	config Config
	probes map[string]Probe
	server *health.Server
	logger *slog.Logger

	mu     sync.RWMutex
	status map[string]Component

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		config: cfg,
		probes: make(map[string]Probe),
		server: health.NewServer(),
		logger: logger,
		status: make(map[string]Component),
		quit:   make(chan struct{}),
	}
}

// Register adds a probe. Call before Start.
func (m *Monitor) Register(name string, p Probe) {
	m.probes[name] = p
	m.server.SetServingStatus(name, healthpb.HealthCheckResponse_UNKNOWN)
}

// Server is the gRPC health service to register on a grpc.Server.
func (m *Monitor) Server() *health.Server { return m.server }

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.quit)
		m.server.Shutdown()
	})
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Initial Run
	m.CheckOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			m.CheckOnce(context.Background())
		case <-m.quit:
			return
		}
	}
}

// CheckOnce runs every probe and updates the published status.
func (m *Monitor) CheckOnce(ctx context.Context) {
	allHealthy := true
	now := time.Now().UTC()

	for name, p := range m.probes {
		pctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		err := p(pctx)
		cancel()

		c := Component{Healthy: err == nil, CheckedAt: now}
		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			c.Error = err.Error()
			st = healthpb.HealthCheckResponse_NOT_SERVING
			allHealthy = false
		}

		m.mu.Lock()
		prev, seen := m.status[name]
		m.status[name] = c
		m.mu.Unlock()

		if seen && prev.Healthy != c.Healthy {
			m.logger.Warn("health changed", "component", name, "healthy", c.Healthy, "error", c.Error)
		}
		m.server.SetServingStatus(name, st)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !allHealthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", overall)
}

// Snapshot returns a copy of the latest results.
func (m *Monitor) Snapshot() map[string]Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Component, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// Handler serves the snapshot as JSON, 503 when any component is down.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()
		names := make([]string, 0, len(snap))
		for n := range snap {
			names = append(names, n)
		}
		sort.Strings(names)

		status := "ok"
		for _, n := range names {
			if !snap[n].Healthy {
				status = "degraded"
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": status, "components": snap})
	})
}
