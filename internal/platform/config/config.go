// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":9300"
	ListenAddr string `toml:"listen_addr"`

	// Namespace prefixes every storage key written by this instance.
	// Instances sharing a backend and a namespace see the same data.
	Namespace string `toml:"namespace"`

	// Store selects and configures the persistence driver.
	Store StoreConfig `toml:"store"`

	// Cache configures the artist summary cache.
	Cache CacheConfig `toml:"cache"`

	// InFlight configures the per-subject in-flight guard.
	InFlight InFlightConfig `toml:"inflight"`

	// Auth configures how HTTP callers are mapped to actor ids.
	Auth AuthConfig `toml:"auth"`

	// HTTP holds listener-level settings.
	HTTP HTTPConfig `toml:"http"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig holds store driver settings.
type StoreConfig struct {
	// Driver is the store driver name: memory, json, sqlite, valkey, badger, mirror.
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [store.drivers.sqlite] data_dir = ".artfolio"
	Drivers map[string]map[string]any `toml:"drivers"`
}

// DriverConfig returns a copy of the raw config map for the selected driver.
func (s StoreConfig) DriverConfig() map[string]any {
	return copyMap(s.Drivers[s.Driver])
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: memory or valkey.
	Driver string `toml:"driver"`

	// TTL bounds how long an artist summary is served without a change event.
	TTL time.Duration `toml:"ttl"`

	// Drivers holds per-driver configuration.
	Drivers map[string]map[string]any `toml:"drivers"`
}

// DriverConfig returns a copy of the raw config map for the selected driver.
func (c CacheConfig) DriverConfig() map[string]any {
	return copyMap(c.Drivers[c.Driver])
}

// InFlightConfig holds in-flight guard settings.
type InFlightConfig struct {
	// MaxHold releases a subject whose holder never finished. Default: 30s.
	MaxHold time.Duration `toml:"max_hold"`
}

// AuthConfig holds actor resolution settings.
type AuthConfig struct {
	// DevHeader trusts the X-Actor-ID request header. Dev mode only.
	DevHeader bool `toml:"dev_header"`

	// Tokens maps bearer tokens (bcrypt hashed) to actor ids.
	Tokens []TokenConfig `toml:"tokens"`
}

// TokenConfig binds one bearer token hash to an actor.
type TokenConfig struct {
	ActorID string `toml:"actor_id"`
	Hash    string `toml:"hash"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `toml:"trust_proxy_headers"`

	// RateLimit throttles mutating API routes per actor (or client IP).
	RateLimit RateLimitConfig `toml:"ratelimit"`

	// Metrics exposes Prometheus metrics.
	Metrics MetricsConfig `toml:"metrics"`

	// Events configures the websocket event forwarder.
	Events EventsConfig `toml:"events"`

	// Services holds per-service sections.
	// Example: [http.services.api] list_limit = 200
	Services map[string]map[string]any `toml:"services"`
}

// ServiceConfig returns a copy of the raw config map for a service.
func (h HTTPConfig) ServiceConfig(name string) map[string]any {
	return copyMap(h.Services[name])
}

// RateLimitConfig holds token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// MetricsConfig holds /metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// EventsConfig holds websocket forwarder settings.
type EventsConfig struct {
	Enabled bool `toml:"enabled"`

	// AllowedOrigins lists Origin values accepted on upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// Format is json or text. Default: json.
	Format string `toml:"format"`
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString(fmt.Sprintf("  Namespace: %q,\n", c.Namespace))
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    Settings: %s,\n", redactMap(c.Store.Drivers[c.Store.Driver])))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("    TTL: %s,\n", c.Cache.TTL))
	sb.WriteString(fmt.Sprintf("    Settings: %s,\n", redactMap(c.Cache.Drivers[c.Cache.Driver])))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  InFlight.MaxHold: %s,\n", c.InFlight.MaxHold))
	sb.WriteString("  Auth: {\n")
	sb.WriteString(fmt.Sprintf("    DevHeader: %v,\n", c.Auth.DevHeader))
	sb.WriteString(fmt.Sprintf("    TokensCount: %d,\n", len(c.Auth.Tokens)))
	sb.WriteString("  },\n")
	sb.WriteString("  HTTP: {\n")
	sb.WriteString(fmt.Sprintf("    ReadTimeout: %s,\n", c.HTTP.ReadTimeout))
	sb.WriteString(fmt.Sprintf("    WriteTimeout: %s,\n", c.HTTP.WriteTimeout))
	sb.WriteString(fmt.Sprintf("    ShutdownTimeout: %s,\n", c.HTTP.ShutdownTimeout))
	sb.WriteString(fmt.Sprintf("    TrustProxyHeaders: %v,\n", c.HTTP.TrustProxyHeaders))
	sb.WriteString(fmt.Sprintf("    RateLimit: {Enabled: %v, RPS: %g, Burst: %d},\n",
		c.HTTP.RateLimit.Enabled, c.HTTP.RateLimit.RequestsPerSecond, c.HTTP.RateLimit.Burst))
	sb.WriteString(fmt.Sprintf("    Metrics: {Enabled: %v, Path: %q},\n", c.HTTP.Metrics.Enabled, c.HTTP.Metrics.Path))
	sb.WriteString(fmt.Sprintf("    Events: {Enabled: %v, AllowedOrigins: %v},\n", c.HTTP.Events.Enabled, c.HTTP.Events.AllowedOrigins))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString(fmt.Sprintf("    Format: %q,\n", c.Logging.Format))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}

// sensitiveKeys are driver settings never printed.
var sensitiveKeys = map[string]bool{"password": true, "secret": true, "token": true}

func redactMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		if sensitiveKeys[strings.ToLower(k)] {
			sb.WriteString(k + ": [REDACTED]")
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %v", k, m[k]))
	}
	sb.WriteString("}")
	return sb.String()
}
