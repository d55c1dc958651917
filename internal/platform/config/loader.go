package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARTFOLIO_"

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides file and env mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override everything else.
	FlagOverrides FlagOverrides

	// Environment replaces the process environment when non-nil (tests).
	Environment map[string]string

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	Namespace    *string
	StoreDriver  *string
	LoggingLevel *string
	DevHeader    *string // "true", "false", or "" (unset)
}

// envOverrides is read from ARTFOLIO_* variables.
type envOverrides struct {
	Mode           string `env:"MODE"`
	ListenAddr     string `env:"LISTEN_ADDR"`
	Namespace      string `env:"NAMESPACE"`
	StoreDriver    string `env:"STORE_DRIVER"`
	CacheDriver    string `env:"CACHE_DRIVER"`
	DataDir        string `env:"DATA_DIR"`
	ValkeyAddr     string `env:"VALKEY_ADDR"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`
	LogLevel       string `env:"LOG_LEVEL"`
	LogFormat      string `env:"LOG_FORMAT"`
	MetricsEnabled *bool  `env:"METRICS_ENABLED"`
	RateLimit      *bool  `env:"RATELIMIT_ENABLED"`
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`
	Namespace  string `toml:"namespace"`

	Store    *StoreConfig    `toml:"store"`
	Cache    *CacheConfig    `toml:"cache"`
	InFlight *InFlightConfig `toml:"inflight"`
	Auth     *authConfig     `toml:"auth"`
	HTTP     *httpConfig     `toml:"http"`
	Logging  *LoggingConfig  `toml:"logging"`
}

type authConfig struct {
	DevHeader *bool         `toml:"dev_header"`
	Tokens    []TokenConfig `toml:"tokens"`
}

type httpConfig struct {
	ReadTimeout     time.Duration    `toml:"read_timeout"`
	WriteTimeout    time.Duration    `toml:"write_timeout"`
	ShutdownTimeout time.Duration    `toml:"shutdown_timeout"`
	TrustProxy      *bool            `toml:"trust_proxy_headers"`
	RateLimit       *RateLimitConfig `toml:"ratelimit"`
	Metrics         *MetricsConfig   `toml:"metrics"`
	Events          *EventsConfig    `toml:"events"`

	Services map[string]map[string]any `toml:"services"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > ARTFOLIO_MODE > mode in file > strict
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay ARTFOLIO_* environment variables
//  5. Overlay CLI flags
//  6. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown TOML keys produce a warning.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	var ev envOverrides
	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}
	if err := env.ParseWithOptions(&ev, envOpts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if ev.Mode != "" {
		modeStr = ev.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	overlayFileConfig(cfg, &fc)
	overlayEnv(cfg, &ev)
	if err := overlayFlags(cfg, opts.FlagOverrides); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":9300",
		Namespace:  "artfolio",
		Store: StoreConfig{
			Driver: "sqlite",
			Drivers: map[string]map[string]any{
				"sqlite": {"data_dir": ".artfolio"},
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    5 * time.Minute,
		},
		InFlight: InFlightConfig{MaxHold: 30 * time.Second},
		HTTP: HTTPConfig{
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 5,
				Burst:             10,
			},
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Events:  EventsConfig{Enabled: true},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// DevConfig returns development defaults: in-memory store, trusted actor header.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Store.Driver = "memory"
	cfg.Auth.DevHeader = true
	cfg.HTTP.RateLimit.Enabled = false
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	return cfg
}

func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.Namespace != "" {
		cfg.Namespace = fc.Namespace
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		mergeDrivers(&cfg.Store.Drivers, fc.Store.Drivers)
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.TTL != 0 {
			cfg.Cache.TTL = fc.Cache.TTL
		}
		mergeDrivers(&cfg.Cache.Drivers, fc.Cache.Drivers)
	}

	if fc.InFlight != nil && fc.InFlight.MaxHold != 0 {
		cfg.InFlight.MaxHold = fc.InFlight.MaxHold
	}

	if fc.Auth != nil {
		if fc.Auth.DevHeader != nil {
			cfg.Auth.DevHeader = *fc.Auth.DevHeader
		}
		if len(fc.Auth.Tokens) > 0 {
			cfg.Auth.Tokens = fc.Auth.Tokens
		}
	}

	if fc.HTTP != nil {
		if fc.HTTP.ReadTimeout != 0 {
			cfg.HTTP.ReadTimeout = fc.HTTP.ReadTimeout
		}
		if fc.HTTP.WriteTimeout != 0 {
			cfg.HTTP.WriteTimeout = fc.HTTP.WriteTimeout
		}
		if fc.HTTP.ShutdownTimeout != 0 {
			cfg.HTTP.ShutdownTimeout = fc.HTTP.ShutdownTimeout
		}
		if fc.HTTP.TrustProxy != nil {
			cfg.HTTP.TrustProxyHeaders = *fc.HTTP.TrustProxy
		}
		// Bool fields are taken as-is when their section is present.
		if rl := fc.HTTP.RateLimit; rl != nil {
			cfg.HTTP.RateLimit.Enabled = rl.Enabled
			if rl.RequestsPerSecond != 0 {
				cfg.HTTP.RateLimit.RequestsPerSecond = rl.RequestsPerSecond
			}
			if rl.Burst != 0 {
				cfg.HTTP.RateLimit.Burst = rl.Burst
			}
		}
		if m := fc.HTTP.Metrics; m != nil {
			cfg.HTTP.Metrics.Enabled = m.Enabled
			if m.Path != "" {
				cfg.HTTP.Metrics.Path = m.Path
			}
		}
		mergeDrivers(&cfg.HTTP.Services, fc.HTTP.Services)
		if e := fc.HTTP.Events; e != nil {
			cfg.HTTP.Events.Enabled = e.Enabled
			if len(e.AllowedOrigins) > 0 {
				cfg.HTTP.Events.AllowedOrigins = e.AllowedOrigins
			}
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			cfg.Logging.Format = fc.Logging.Format
		}
	}
}

// mergeDrivers overlays per-driver sections key by key.
func mergeDrivers(dst *map[string]map[string]any, src map[string]map[string]any) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]map[string]any)
	}
	for name, section := range src {
		merged := copyMap((*dst)[name])
		if merged == nil {
			merged = make(map[string]any)
		}
		for k, v := range section {
			merged[k] = v
		}
		(*dst)[name] = merged
	}
}

// setDriverKey sets one key in a driver section, creating it if needed.
func setDriverKey(drivers *map[string]map[string]any, driver, key string, value any) {
	mergeDrivers(drivers, map[string]map[string]any{driver: {key: value}})
}

func overlayEnv(cfg *Config, ev *envOverrides) {
	if ev.ListenAddr != "" {
		cfg.ListenAddr = ev.ListenAddr
	}
	if ev.Namespace != "" {
		cfg.Namespace = ev.Namespace
	}
	if ev.StoreDriver != "" {
		cfg.Store.Driver = ev.StoreDriver
	}
	if ev.CacheDriver != "" {
		cfg.Cache.Driver = ev.CacheDriver
	}
	if ev.DataDir != "" {
		setDriverKey(&cfg.Store.Drivers, "json", "data_dir", ev.DataDir)
		setDriverKey(&cfg.Store.Drivers, "sqlite", "data_dir", ev.DataDir)
	}
	if ev.ValkeyAddr != "" {
		setDriverKey(&cfg.Store.Drivers, "valkey", "addr", ev.ValkeyAddr)
		setDriverKey(&cfg.Cache.Drivers, "valkey", "addr", ev.ValkeyAddr)
	}
	if ev.ValkeyPassword != "" {
		setDriverKey(&cfg.Store.Drivers, "valkey", "password", ev.ValkeyPassword)
		setDriverKey(&cfg.Cache.Drivers, "valkey", "password", ev.ValkeyPassword)
	}
	if ev.LogLevel != "" {
		cfg.Logging.Level = ev.LogLevel
	}
	if ev.LogFormat != "" {
		cfg.Logging.Format = ev.LogFormat
	}
	if ev.MetricsEnabled != nil {
		cfg.HTTP.Metrics.Enabled = *ev.MetricsEnabled
	}
	if ev.RateLimit != nil {
		cfg.HTTP.RateLimit.Enabled = *ev.RateLimit
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) error {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.Namespace != nil && *f.Namespace != "" {
		cfg.Namespace = *f.Namespace
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.DevHeader != nil && *f.DevHeader != "" {
		switch strings.ToLower(*f.DevHeader) {
		case "true":
			cfg.Auth.DevHeader = true
		case "false":
			cfg.Auth.DevHeader = false
		default:
			return fmt.Errorf("invalid --dev-header value %q: must be true or false", *f.DevHeader)
		}
	}
	return nil
}

// Validate checks enum fields and cross-field constraints.
func Validate(cfg *Config) error {
	if _, err := ParseMode(cfg.Mode); err != nil {
		return err
	}
	if cfg.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if cfg.Store.Driver == "" {
		return fmt.Errorf("store.driver must not be empty")
	}
	switch cfg.Cache.Driver {
	case "memory", "valkey":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, valkey", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cfg.InFlight.MaxHold <= 0 {
		return fmt.Errorf("inflight.max_hold must be positive")
	}
	if cfg.Auth.DevHeader && cfg.Mode != string(ModeDev) {
		return fmt.Errorf("auth.dev_header is only allowed in dev mode")
	}
	for i, tok := range cfg.Auth.Tokens {
		if tok.ActorID == "" {
			return fmt.Errorf("auth.tokens[%d]: actor_id must not be empty", i)
		}
		if !strings.HasPrefix(tok.Hash, "$2") {
			return fmt.Errorf("auth.tokens[%d]: hash must be a bcrypt hash", i)
		}
	}
	if cfg.HTTP.RateLimit.Enabled && (cfg.HTTP.RateLimit.RequestsPerSecond <= 0 || cfg.HTTP.RateLimit.Burst <= 0) {
		return fmt.Errorf("http.ratelimit: requests_per_second and burst must be positive")
	}
	if cfg.HTTP.Metrics.Enabled && !strings.HasPrefix(cfg.HTTP.Metrics.Path, "/") {
		return fmt.Errorf("http.metrics.path must start with /")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q: must be json or text", cfg.Logging.Format)
	}
	return nil
}
