package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration as read from default.yaml.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Redis      RedisConfig      `yaml:"redis"`
	Bus        BusConfig        `yaml:"bus"`
	Database   DatabaseConfig   `yaml:"database"`
	License    LicenseConfig    `yaml:"license"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Detector   DetectorConfig   `yaml:"detector"`
	Pages      []PageConfig     `yaml:"pages"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type HTTPConfig struct {
	Addr           string     `yaml:"addr"`
	AllowedOrigins []string   `yaml:"allowed_origins"` // empty allows any origin
	RequestRate    RateConfig `yaml:"request_rate"`    // per client IP, zero disables
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // empty disables the health server
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type BusConfig struct {
	NatsURL string `yaml:"nats_url"` // empty selects the in-process bus
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables the event journal
}

type LicenseConfig struct {
	APIBase            string        `yaml:"api_base"`
	Timeout            time.Duration `yaml:"timeout"`
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`
	ValidationTTL      time.Duration `yaml:"validation_ttl"`
}

type MonitoringConfig struct {
	CheckIntervalMinutes int    `yaml:"check_interval_minutes"`
	TargetURL            string `yaml:"target_url"`
	NotificationSound    *bool  `yaml:"notification_sound"`
}

type RuleConfig struct {
	Kind     string `yaml:"kind"` // booking, available, unavailable
	Selector string `yaml:"selector"`
}

type RateConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

type DetectorConfig struct {
	Mode             string        `yaml:"mode"` // pattern, structural, both
	Keywords         []string      `yaml:"keywords"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	DebounceWindow   time.Duration `yaml:"debounce_window"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	UserAgent        string        `yaml:"user_agent"`
	FetchRate        RateConfig    `yaml:"fetch_rate"`
	Rules            []RuleConfig  `yaml:"rules"` // replaces the built-in table when set
}

type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

type NotifyConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	WebhookEvery time.Duration `yaml:"webhook_every"`
	WebhookBurst int           `yaml:"webhook_burst"`
	Bell         bool          `yaml:"bell"`
}

const DefaultAPIBase = "https://slothunter-backend.vercel.app"

// Default returns the configuration used when no file exists.
func Default() Config {
	sound := true
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		HTTP:  HTTPConfig{Addr: "127.0.0.1:8765", RequestRate: RateConfig{Rate: 120, Window: time.Minute}},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "slothunter:"},
		License: LicenseConfig{
			APIBase:            DefaultAPIBase,
			Timeout:            10 * time.Second,
			RevalidateInterval: 6 * time.Hour,
			ValidationTTL:      5 * time.Minute,
		},
		Monitoring: MonitoringConfig{
			CheckIntervalMinutes: 5,
			NotificationSound:    &sound,
		},
		Detector: DetectorConfig{
			Mode:             "both",
			Keywords:         []string{"vfsglobal", "visa", "appointment"},
			InitialDelay:     2 * time.Second,
			DebounceWindow:   500 * time.Millisecond,
			FallbackInterval: 30 * time.Second,
			PollInterval:     15 * time.Second,
			UserAgent:        "SlotHunter/1.0",
			FetchRate:        RateConfig{Rate: 10, Window: time.Minute},
		},
		Notify: NotifyConfig{
			WebhookEvery: 2 * time.Second,
			WebhookBurst: 5,
			Bell:         true,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg, os.Getenv)
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SLOTHUNTER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("SLOTHUNTER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := getenv("SLOTHUNTER_NATS_URL"); v != "" {
		cfg.Bus.NatsURL = v
	}
	if v := getenv("SLOTHUNTER_API_BASE"); v != "" {
		cfg.License.APIBase = v
	}
	if v := getenv("SLOTHUNTER_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("SLOTHUNTER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := getenv("SLOTHUNTER_CHECK_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitoring.CheckIntervalMinutes = n
		}
	}
}

// fillDefaults restores zero values a partial file may have left behind.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Monitoring.CheckIntervalMinutes == 0 {
		c.Monitoring.CheckIntervalMinutes = def.Monitoring.CheckIntervalMinutes
	}
	if c.Monitoring.NotificationSound == nil {
		c.Monitoring.NotificationSound = def.Monitoring.NotificationSound
	}
	if c.Detector.Mode == "" {
		c.Detector.Mode = def.Detector.Mode
	}
	if len(c.Detector.Keywords) == 0 {
		c.Detector.Keywords = def.Detector.Keywords
	}
	if c.Detector.InitialDelay == 0 {
		c.Detector.InitialDelay = def.Detector.InitialDelay
	}
	if c.Detector.DebounceWindow == 0 {
		c.Detector.DebounceWindow = def.Detector.DebounceWindow
	}
	if c.Detector.FallbackInterval == 0 {
		c.Detector.FallbackInterval = def.Detector.FallbackInterval
	}
	if c.Detector.PollInterval == 0 {
		c.Detector.PollInterval = def.Detector.PollInterval
	}
	if c.License.Timeout == 0 {
		c.License.Timeout = def.License.Timeout
	}
	if c.License.RevalidateInterval == 0 {
		c.License.RevalidateInterval = def.License.RevalidateInterval
	}
	if c.License.ValidationTTL == 0 {
		c.License.ValidationTTL = def.License.ValidationTTL
	}
	if c.License.APIBase == "" {
		c.License.APIBase = def.License.APIBase
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Monitoring.CheckIntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("monitoring.check_interval_minutes must be positive"))
	}
	switch strings.ToLower(c.Detector.Mode) {
	case "pattern", "structural", "both":
	default:
		errs = append(errs, fmt.Errorf("detector.mode %q: want pattern, structural or both", c.Detector.Mode))
	}
	for i, r := range c.Detector.Rules {
		switch r.Kind {
		case "booking", "available", "unavailable":
		default:
			errs = append(errs, fmt.Errorf("detector.rules[%d].kind %q", i, r.Kind))
		}
	}
	seen := make(map[string]bool)
	for i, p := range c.Pages {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("pages[%d].url is required", i))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("pages[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
	}
	return errors.Join(errs...)
}
