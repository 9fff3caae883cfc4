package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/technosupport/slothunter/internal/api"
	"github.com/technosupport/slothunter/internal/clock"
	"github.com/technosupport/slothunter/internal/config"
	"github.com/technosupport/slothunter/internal/detector"
	"github.com/technosupport/slothunter/internal/fingerprint"
	"github.com/technosupport/slothunter/internal/health"
	"github.com/technosupport/slothunter/internal/journal"
	"github.com/technosupport/slothunter/internal/license"
	"github.com/technosupport/slothunter/internal/middleware"
	"github.com/technosupport/slothunter/internal/monitor"
	"github.com/technosupport/slothunter/internal/notify"
	"github.com/technosupport/slothunter/internal/platform/paths"
	"github.com/technosupport/slothunter/internal/platform/service"
	"github.com/technosupport/slothunter/internal/protocol"
	"github.com/technosupport/slothunter/internal/ratelimit"
	"github.com/technosupport/slothunter/internal/store"
)

const serviceName = "slothunterd"

func main() {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := service.Run(ctx, serviceName, func(ctx context.Context) error {
		return run(ctx, *configPath)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		stop()
		os.Exit(1)
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func monitorDefaults(c config.MonitoringConfig) monitor.Config {
	d := monitor.DefaultConfig()
	if c.CheckIntervalMinutes > 0 {
		d.CheckIntervalMinutes = c.CheckIntervalMinutes
	}
	d.TargetURL = c.TargetURL
	if c.NotificationSound != nil {
		d.NotificationSound = *c.NotificationSound
	}
	return d
}

func run(ctx context.Context, configPath string) error {
	// 1. Platform paths and config
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("platform init: %w", err)
	}
	path := paths.ResolveConfigPath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting", "config", path, "http", cfg.HTTP.Addr)

	// 2. Store
	st, err := store.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer st.Close()

	// 3. Bus: NATS when configured, otherwise in-process
	var (
		bus protocol.Bus = protocol.NewLocalBus(logger)
		nc  *nats.Conn
	)
	if cfg.Bus.NatsURL != "" {
		nc, err = nats.Connect(cfg.Bus.NatsURL, nats.Name(serviceName), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()
		bus = protocol.NewNATSBus(nc, logger)
		logger.Info("using nats bus", "url", cfg.Bus.NatsURL)
	}

	// 4. Optional journal
	var (
		db  *sql.DB
		jnl *journal.Service
	)
	if cfg.Database.URL != "" {
		db, err = journal.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		jnl = journal.NewService(db, filepath.Join(paths.ResolveDataRoot(), "journal_spool"), logger)
		jnl.StartReplayer(ctx, time.Minute)
		defer jnl.Wait()
	}

	// 5. License
	licSvc := license.NewService(st, license.NewClient(cfg.License.APIBase, cfg.License.Timeout), license.Options{
		ValidationTTL: cfg.License.ValidationTTL,
		Fingerprints:  fingerprint.Generate(fingerprint.Collect()),
		Logger:        logger,
	})

	// 6. Detector pool. Pages configured here start below; a target set at
	// runtime through the monitoring config is started by the coordinator.
	limiter := ratelimit.NewLimiter(st.Client(), cfg.Redis.Prefix+"rl:")
	registry := detector.NewRegistry()
	rules := detector.CompileRules(cfg.Detector.Rules, logger)
	mode, err := detector.ParseMode(cfg.Detector.Mode)
	if err != nil {
		return err
	}
	var beeper detector.Beeper
	if cfg.Notify.Bell {
		beeper = detector.BellBeeper{W: os.Stdout}
	}
	clk := clock.Real()
	var coord *monitor.Coordinator
	build := func(id, url string) *detector.Detector {
		page := detector.NewHTTPPage(detector.HTTPPageOptions{
			ID:           id,
			URL:          url,
			UserAgent:    cfg.Detector.UserAgent,
			PollInterval: cfg.Detector.PollInterval,
			Limiter:      limiter,
			Rate:         ratelimit.LimitConfig{Rate: cfg.Detector.FetchRate.Rate, Window: cfg.Detector.FetchRate.Window},
			Logger:       logger,
		})
		return detector.New(detector.Options{
			ID:               id,
			Page:             page,
			Mode:             mode,
			Rules:            rules,
			Keywords:         cfg.Detector.Keywords,
			InitialDelay:     cfg.Detector.InitialDelay,
			DebounceWindow:   cfg.Detector.DebounceWindow,
			FallbackInterval: cfg.Detector.FallbackInterval,
			Bus:              bus,
			Gate:             licSvc,
			Clock:            clk,
			Indicator:        &detector.LogIndicator{Logger: logger, PageID: id},
			Beeper:           beeper,
			Sound:            coord,
			Logger:           logger,
		})
	}
	detCtx, cancelDetectors := context.WithCancel(ctx)
	pool := detector.NewPool(detCtx, bus, registry, build, logger)
	defer func() {
		cancelDetectors()
		pool.Wait()
	}()

	// 7. Coordinator
	badge := &notify.MemoryBadge{}
	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookEvery, cfg.Notify.WebhookBurst))
	}
	hub := api.NewHub(cfg.HTTP.AllowedOrigins, logger)
	sinks := []monitor.EventSink{hub}
	if jnl != nil {
		sinks = append(sinks, jnl)
	}
	coord = monitor.New(monitor.Options{
		Store:    st,
		License:  licSvc,
		Bus:      bus,
		Notifier: notifiers,
		Animator: notify.NewAnimator(clk, badge),
		Targets:  pool,
		Clock:    clk,
		Defaults: monitorDefaults(cfg.Monitoring),
		Sinks:    sinks,
		Logger:   logger,
	})
	defer coord.WaitHeartbeats()
	router := monitor.NewRouter(coord)
	unsub, err := router.Attach(bus)
	if err != nil {
		return fmt.Errorf("attach coordinator: %w", err)
	}
	defer unsub()

	reval := license.NewRevalidator(licSvc, cfg.License.RevalidateInterval, coord.LicenseDeactivated, logger)
	reval.Start(ctx)
	defer reval.Stop()

	pages := cfg.Pages
	if len(pages) == 0 && cfg.Monitoring.TargetURL != "" {
		pages = []config.PageConfig{{ID: "target", URL: cfg.Monitoring.TargetURL}}
	}
	for _, pc := range pages {
		if _, err := pool.Start(pc.ID, pc.URL); err != nil {
			return err
		}
	}

	// 8. Health
	hm := health.NewMonitor(health.Config{Interval: 15 * time.Second, Timeout: 3 * time.Second}, logger)
	hm.Register("redis", st.Ping)
	if nc != nil {
		hm.Register("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		})
	}
	if db != nil {
		hm.Register("database", db.PingContext)
	}
	hm.Start()
	defer hm.Stop()

	// 9. Config hot reload
	watcher := config.NewWatcher(path, func(next config.Config) {
		coord.SetDefaults(monitorDefaults(next.Monitoring))
		logger.Info("config reloaded; detector rules and pages apply on restart")
	}, logger)

	// 10. Resume whatever was running before the restart
	coord.Restore(ctx)

	handler := api.NewRouter(api.Options{
		Coordinator:    router,
		License:        licSvc,
		Bus:            bus,
		Registry:       registry,
		History:        historyOf(jnl),
		Health:         hm.Handler(),
		Badge:          badge,
		Events:         hub,
		RateLimit:      middleware.NewRateLimitMiddleware(limiter, ratelimit.LimitConfig{Rate: cfg.HTTP.RequestRate.Rate, Window: cfg.HTTP.RequestRate.Window}, logger),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	grp, groupCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		watcher.Start(groupCtx)
		return nil
	})
	grp.Go(func() error {
		return serveHTTP(groupCtx, cfg.HTTP.Addr, handler, logger)
	})
	if cfg.GRPC.Addr != "" {
		grp.Go(func() error {
			return serveGRPC(groupCtx, cfg.GRPC.Addr, hm, logger)
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// historyOf avoids handing the API a typed nil.
func historyOf(j *journal.Service) api.History {
	if j == nil {
		return nil
	}
	return j
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func serveGRPC(ctx context.Context, addr string, hm *health.Monitor, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hm.Server())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc health listening", "addr", addr)
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
