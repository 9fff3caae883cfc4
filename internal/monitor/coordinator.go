// Package monitor holds the monitoring coordinator: the Stopped/Running
// state machine that schedules checks, relays results and raises alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/technosupport/slothunter/internal/clock"
	"github.com/technosupport/slothunter/internal/license"
	"github.com/technosupport/slothunter/internal/metrics"
	"github.com/technosupport/slothunter/internal/notify"
	"github.com/technosupport/slothunter/internal/protocol"
	"github.com/technosupport/slothunter/internal/store"
)

var ErrLicenseRequired = errors.New("License required")

const (
	msgStarted = "Slot monitoring started! We'll notify you when slots are available."
	msgStopped = "Slot monitoring stopped."

	heartbeatTimeout = 10 * time.Second
)

// Licensing is what the coordinator needs from the license service.
type Licensing interface {
	Gate(ctx context.Context) bool
	Load(ctx context.Context) (*license.License, license.Tokens, error)
	Deactivate(ctx context.Context) error
	LatestConfig(ctx context.Context) (*license.RemoteConfig, error)
	Heartbeat(ctx context.Context, p license.HeartbeatPayload) error
}

// EventSink receives coordinator events. Publish must not block.
type EventSink interface {
	Publish(ev protocol.Event)
}

// Targets starts watching a page set through the monitoring config.
type Targets interface {
	Watch(url string) error
}

type Options struct {
	Store    store.Store
	License  Licensing
	Bus      protocol.Bus
	Notifier notify.Notifier
	Animator *notify.Animator // nil disables the badge
	Targets  Targets          // nil ignores TargetURL
	Clock    clock.Clock
	Defaults Config
	Sinks    []EventSink
	Logger   *slog.Logger
}

type Coordinator struct {
	store    store.Store
	license  Licensing
	bus      protocol.Bus
	notifier notify.Notifier
	animator *notify.Animator
	targets  Targets
	clock    clock.Clock
	logger   *slog.Logger
	alarm    *Alarm

	sinksMu sync.RWMutex
	sinks   []EventSink

	// mu serialises every transition; counters are read-modify-write
	// against the store inside it.
	mu       sync.Mutex
	running  bool
	defaults Config
	hbWG     sync.WaitGroup
}

func New(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Defaults == (Config{}) {
		opts.Defaults = DefaultConfig()
	}
	if opts.Defaults.CheckIntervalMinutes <= 0 {
		opts.Defaults.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	return &Coordinator{
		store:    opts.Store,
		license:  opts.License,
		bus:      opts.Bus,
		notifier: opts.Notifier,
		animator: opts.Animator,
		targets:  opts.Targets,
		clock:    opts.Clock,
		sinks:    opts.Sinks,
		logger:   opts.Logger,
		alarm:    NewAlarm(opts.Clock),
		defaults: opts.Defaults,
	}
}

// AddSink registers another event consumer.
func (c *Coordinator) AddSink(s EventSink) {
	c.sinksMu.Lock()
	c.sinks = append(c.sinks, s)
	c.sinksMu.Unlock()
}

// SetDefaults replaces the configuration used when none is stored.
func (c *Coordinator) SetDefaults(d Config) {
	c.mu.Lock()
	if d.CheckIntervalMinutes <= 0 {
		d.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	c.defaults = d
	c.mu.Unlock()
}

// Running reports the in-memory state.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// AlarmPeriod is the armed check period, zero when stopped.
func (c *Coordinator) AlarmPeriod() time.Duration { return c.alarm.Period() }

// Start begins or re-arms monitoring with update merged into the stored
// configuration.
func (c *Coordinator) Start(ctx context.Context, update *protocol.ConfigUpdate) (Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.license.Gate(ctx) {
		c.logger.Info("start rejected: no valid license")
		return Config{}, ErrLicenseRequired
	}

	cfg := c.loadConfigLocked(ctx).Merge(update)
	now := c.clock.Now().UTC()

	// 1. Persist before arming, so a restart sees what is running
	err := c.store.SetMany(ctx, map[string]any{
		store.KeyMonitoringConfig:    cfg,
		store.KeyIsMonitoring:        true,
		store.KeyMonitoringStartedAt: now,
	})
	if err != nil {
		return Config{}, fmt.Errorf("persist monitoring state: %w", err)
	}

	// 2. Arm (replacing any earlier schedule) and make sure the target is watched
	c.alarm.Arm(cfg.interval(), c.onAlarm)
	c.running = true
	metrics.SetMonitoring(true)
	c.watchTarget(cfg)

	// 3. Tell the user
	c.logger.Info("monitoring started", "interval_minutes", cfg.CheckIntervalMinutes, "target", cfg.TargetURL)
	c.notify(ctx, notify.New(msgStarted, now))
	c.emit(protocol.EventMonitoringStarted, cfg)
	return cfg, nil
}

// Stop disarms the alarm and persists the stopped state.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(ctx, true)
}

func (c *Coordinator) stopLocked(ctx context.Context, announce bool) error {
	c.alarm.Disarm()
	c.running = false
	metrics.SetMonitoring(false)

	now := c.clock.Now().UTC()
	err := c.store.SetMany(ctx, map[string]any{
		store.KeyIsMonitoring:        false,
		store.KeyMonitoringStoppedAt: now,
	})
	if err != nil {
		c.logger.Error("persist stopped state", "error", err)
	}

	c.logger.Info("monitoring stopped")
	if announce {
		c.notify(ctx, notify.New(msgStopped, now))
	}
	c.emit(protocol.EventMonitoringStopped, nil)
	if err != nil {
		return fmt.Errorf("persist monitoring state: %w", err)
	}
	return nil
}

func (c *Coordinator) onAlarm() {
	c.OnTimerFired(context.Background())
}

// OnTimerFired runs a scheduled check. It is a no-op unless running.
func (c *Coordinator) OnTimerFired(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	if !c.license.Gate(ctx) {
		c.logger.Warn("license missing or expired, stopping monitoring")
		_ = c.stopLocked(ctx, true)
		return
	}
	c.checkLocked(ctx, "alarm")
}

// ManualCheck runs a check now, whatever the state. Without a license it
// stops monitoring if running and reports ErrLicenseRequired.
func (c *Coordinator) ManualCheck(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.license.Gate(ctx) {
		if c.running {
			_ = c.stopLocked(ctx, true)
		}
		return "", ErrLicenseRequired
	}
	c.checkLocked(ctx, "manual")
	return "Slot check initiated", nil
}

func (c *Coordinator) checkLocked(ctx context.Context, trigger string) {
	var checks, slots int
	c.read(ctx, store.KeyChecksCount, &checks)
	c.read(ctx, store.KeySlotsFound, &slots)
	checks++
	now := c.clock.Now().UTC()

	err := c.store.SetMany(ctx, map[string]any{
		store.KeyChecksCount: checks,
		store.KeyLastCheckAt: now,
	})
	if err != nil {
		c.logger.Error("persist check counters", "error", err)
	}
	metrics.ChecksTotal.WithLabelValues(trigger).Inc()

	// Fire-and-forget: detectors answer with SLOTS_FOUND on their own.
	if c.bus != nil {
		if err := c.bus.Publish(ctx, protocol.SubjectDetectors, protocol.Message{Type: protocol.CheckSlots}); err != nil {
			c.logger.Warn("broadcast check failed", "error", err)
		}
	}

	payload := license.HeartbeatPayload{
		IsMonitoring: c.running,
		ChecksCount:  checks,
		SlotsFound:   slots,
		Timestamp:    now,
	}
	c.hbWG.Add(1)
	go func() {
		defer c.hbWG.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), heartbeatTimeout)
		defer cancel()
		err := c.license.Heartbeat(hctx, payload)
		metrics.RecordLicenseRequest("heartbeat", err)
		if err != nil {
			c.logger.Debug("heartbeat failed", "error", err)
		}
	}()

	c.logger.Debug("check dispatched", "trigger", trigger, "checks", checks)
	c.emit(protocol.EventCheck, map[string]any{"trigger": trigger, "checksCount": checks})
}

// WaitHeartbeats blocks until in-flight heartbeats finish.
func (c *Coordinator) WaitHeartbeats() { c.hbWG.Wait() }

// OnSlotsReported records a detection and alerts the user.
func (c *Coordinator) OnSlotsReported(ctx context.Context, r protocol.DetectionResult) protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int
	c.read(ctx, store.KeySlotsFound, &total)
	total += r.Count
	now := c.clock.Now().UTC()

	err := c.store.SetMany(ctx, map[string]any{
		store.KeySlotsFound:      total,
		store.KeyLastSlotFoundAt: now,
		store.KeyLastSlotURL:     r.URL,
	})
	if err != nil {
		c.logger.Error("persist slot counters", "error", err)
	}
	metrics.SlotsFoundTotal.Add(float64(r.Count))

	cfg := c.loadConfigLocked(ctx)
	n := notify.New(slotsMessage(r.Count), now)
	n.Title = "SlotHunter - Slots Available!"
	n.URL = r.URL
	n.Priority = notify.PriorityUrgent
	n.RequireInteraction = true
	n.Sound = cfg.NotificationSound
	c.notify(ctx, n)

	if c.animator != nil {
		c.animator.Start(strconv.Itoa(r.Count))
	}

	c.logger.Info("slots reported", "count", r.Count, "url", r.URL, "total", total)
	c.emit(protocol.EventSlotsFound, map[string]any{"count": r.Count, "url": r.URL, "slotsFound": total})
	return protocol.Response{Success: true, Acknowledged: true}
}

func slotsMessage(n int) string {
	if n == 1 {
		return "1 appointment slot found! Open the booking page now."
	}
	return fmt.Sprintf("%d appointment slots found! Open the booking page now.", n)
}

// Status reads the monitoring state. Store failures read as zero values.
func (c *Coordinator) Status(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var st Status
	c.read(ctx, store.KeyIsMonitoring, &st.IsMonitoring)
	c.read(ctx, store.KeySlotsFound, &st.SlotsFound)
	c.read(ctx, store.KeyChecksCount, &st.ChecksCount)
	st.TotalChecks = st.ChecksCount
	st.MonitoringStartedAt = c.readTime(ctx, store.KeyMonitoringStartedAt)
	st.MonitoringStoppedAt = c.readTime(ctx, store.KeyMonitoringStoppedAt)
	st.LastCheckAt = c.readTime(ctx, store.KeyLastCheckAt)
	st.LastSlotFoundAt = c.readTime(ctx, store.KeyLastSlotFoundAt)
	c.read(ctx, store.KeyLastSlotURL, &st.LastSlotURL)
	st.Config = c.loadConfigLocked(ctx)

	st.HasLicense = c.license.Gate(ctx)
	if lic, _, err := c.license.Load(ctx); err == nil && lic != nil {
		info := lic.Info()
		st.License = &info
	}

	var rc license.RemoteConfig
	if c.read(ctx, store.KeyConfig, &rc) {
		st.ConfigVersion = rc.Version
	}
	return st
}

// LicenseActivated refreshes the remote configuration.
func (c *Coordinator) LicenseActivated(ctx context.Context) {
	c.logger.Info("license activated")
	c.emit(protocol.EventLicenseActivated, nil)
	c.SyncConfig(ctx)
}

// LicenseDeactivated removes credentials, stops monitoring and resets the
// session counters.
func (c *Coordinator) LicenseDeactivated(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.license.Deactivate(ctx); err != nil {
		c.logger.Error("remove license", "error", err)
	}
	_ = c.stopLocked(ctx, c.running)

	err := c.store.SetMany(ctx, map[string]any{
		store.KeyChecksCount: 0,
		store.KeySlotsFound:  0,
	})
	if err != nil {
		c.logger.Error("reset counters", "error", err)
	}
	c.logger.Info("license deactivated")
	c.emit(protocol.EventLicenseDeactivated, nil)
}

// Restore resumes monitoring after a daemon restart.
func (c *Coordinator) Restore(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var on bool
	c.read(ctx, store.KeyIsMonitoring, &on)
	if !on {
		return
	}
	if !c.license.Gate(ctx) {
		c.logger.Warn("not resuming monitoring: no valid license")
		_ = c.stopLocked(ctx, false)
		return
	}

	cfg := c.loadConfigLocked(ctx)
	c.alarm.Arm(cfg.interval(), c.onAlarm)
	c.running = true
	metrics.SetMonitoring(true)
	c.watchTarget(cfg)
	c.logger.Info("monitoring resumed", "interval_minutes", cfg.CheckIntervalMinutes)
}

// SyncConfig caches the latest remote configuration. Failures are logged
// and skipped.
func (c *Coordinator) SyncConfig(ctx context.Context) {
	rc, err := c.license.LatestConfig(ctx)
	metrics.RecordLicenseRequest("config", err)
	if err != nil {
		c.logger.Warn("config sync skipped", "error", err)
		return
	}
	if err := c.store.Set(ctx, store.KeyConfig, rc); err != nil {
		c.logger.Error("cache remote config", "error", err)
		return
	}
	c.logger.Info("remote config synced", "version", rc.Version)
	c.emit(protocol.EventConfigSynced, map[string]string{"version": rc.Version})
}

func (c *Coordinator) watchTarget(cfg Config) {
	if c.targets == nil || cfg.TargetURL == "" {
		return
	}
	if err := c.targets.Watch(cfg.TargetURL); err != nil {
		c.logger.Warn("cannot watch target", "url", cfg.TargetURL, "error", err)
	}
}

// SoundEnabled reports the notificationSound setting of the effective
// configuration. Detectors consult it before beeping.
func (c *Coordinator) SoundEnabled(ctx context.Context) bool {
	c.mu.Lock()
	cfg := c.defaults
	c.mu.Unlock()
	c.read(ctx, store.KeyMonitoringConfig, &cfg)
	return cfg.NotificationSound
}

func (c *Coordinator) loadConfigLocked(ctx context.Context) Config {
	cfg := c.defaults
	c.read(ctx, store.KeyMonitoringConfig, &cfg)
	if cfg.CheckIntervalMinutes <= 0 {
		cfg.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	return cfg
}

// read loads key into dst, logging store failures.
func (c *Coordinator) read(ctx context.Context, key string, dst any) bool {
	ok, err := c.store.Get(ctx, key, dst)
	if err != nil {
		c.logger.Warn("store read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (c *Coordinator) readTime(ctx context.Context, key string) *time.Time {
	var t time.Time
	if !c.read(ctx, key, &t) {
		return nil
	}
	return &t
}

func (c *Coordinator) notify(ctx context.Context, n notify.Notification) {
	notify.Deliver(ctx, c.notifier, n, c.logger)
}

func (c *Coordinator) emit(typ string, data any) {
	ev := protocol.Event{Type: typ, At: c.clock.Now().UTC(), Data: data}
	c.sinksMu.RLock()
	defer c.sinksMu.RUnlock()
	for _, s := range c.sinks {
		s.Publish(ev)
	}
}
