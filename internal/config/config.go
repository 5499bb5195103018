// Package config centralizes all application configuration into typed structs.
//
// Values are layered by LoadWithKoanf: built-in defaults, then an optional
// YAML file, then environment variables. Using typed structs (not raw
// strings/maps) gives compile-time safety wherever settings are read.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// Config is the top-level configuration container. Grouping related settings
// into sub-structs keeps the config organized as the application grows.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Tracking  TrackingConfig  `koanf:"tracking"`
	Storage   StorageConfig   `koanf:"storage"`
	Auth      AuthConfig      `koanf:"auth"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Audit     AuditConfig     `koanf:"audit"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Go Learning Note — time.Duration:
// Go uses time.Duration (an int64 of nanoseconds) instead of raw integers for
// timeouts and intervals. koanf decodes strings such as "15s" straight into
// these fields.
type ServerConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Mode            string        `koanf:"mode"` // gin mode: debug, release, test
}

// TrackingConfig controls the in-memory location store.
type TrackingConfig struct {
	MinUpdateInterval time.Duration `koanf:"min_update_interval"` // per-ride rate limit
	Expiration        time.Duration `koanf:"expiration"`          // samples older than this read as absent
	SweepInterval     time.Duration `koanf:"sweep_interval"`      // background eviction; 0 disables
	EventBuffer       int           `koanf:"event_buffer"`        // pending location notifications
}

// StorageConfig selects the booking/driver persistence backend.
type StorageConfig struct {
	Driver string `koanf:"driver"` // memory or badger
	Path   string `koanf:"path"`   // badger directory
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	TokenTTL  time.Duration `koanf:"token_ttl"`

	// PolicyPath overrides the built-in casbin role policy.
	PolicyPath string `koanf:"policy_path"`
}

// RealtimeConfig configures the websocket hub and the event bus in front of it.
type RealtimeConfig struct {
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ClientBuffer    int           `koanf:"client_buffer"`
	BusBuffer       int64         `koanf:"bus_buffer"`
	BreakerFailures uint32        `koanf:"breaker_failures"` // consecutive publish failures before opening
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`  // open -> half-open delay
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled    bool   `koanf:"enabled"`
	BufferSize int    `koanf:"buffer_size"`
	Store      string `koanf:"store"` // memory or badger
	Path       string `koanf:"path"`
	MaxEvents  int    `koanf:"max_events"` // memory store cap
}

// RateLimitConfig is the per-caller API token bucket. Location updates have
// their own per-ride limit in TrackingConfig.
type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// NewDefaultConfig returns a Config populated with sensible defaults. The
// JWT secret is deliberately empty; Validate rejects it until one is set.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Mode:            "release",
		},
		Tracking: TrackingConfig{
			MinUpdateInterval: 15 * time.Second,
			Expiration:        time.Hour,
			SweepInterval:     5 * time.Minute,
			EventBuffer:       1024,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
			Path:   "data/bookings",
		},
		Auth: AuthConfig{
			Issuer:   "limoline-dispatch",
			TokenTTL: 12 * time.Hour,
		},
		Realtime: RealtimeConfig{
			AllowedOrigins:  []string{"*"},
			ClientBuffer:    256,
			BusBuffer:       1024,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1000,
			Store:      StorageMemory,
			Path:       "data/audit",
			MaxEvents:  10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints that the type system cannot.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Tracking.MinUpdateInterval <= 0 {
		errs = append(errs, errors.New("tracking.min_update_interval must be positive"))
	}
	if c.Tracking.Expiration <= 0 {
		errs = append(errs, errors.New("tracking.expiration must be positive"))
	}
	if c.Tracking.Expiration < c.Tracking.MinUpdateInterval {
		errs = append(errs, fmt.Errorf("tracking.expiration (%s) must not be shorter than tracking.min_update_interval (%s)",
			c.Tracking.Expiration, c.Tracking.MinUpdateInterval))
	}
	if c.Tracking.SweepInterval < 0 {
		errs = append(errs, errors.New("tracking.sweep_interval must not be negative"))
	}
	if c.Tracking.EventBuffer <= 0 {
		errs = append(errs, errors.New("tracking.event_buffer must be positive"))
	}
	if !validStore(c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver %q: must be %s or %s", c.Storage.Driver, StorageMemory, StorageBadger))
	}
	if c.Storage.Driver == StorageBadger && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required for the badger driver"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Realtime.ClientBuffer <= 0 {
		errs = append(errs, errors.New("realtime.client_buffer must be positive"))
	}
	if c.Audit.Enabled {
		if !validStore(c.Audit.Store) {
			errs = append(errs, fmt.Errorf("audit.store %q: must be %s or %s", c.Audit.Store, StorageMemory, StorageBadger))
		}
		if c.Audit.BufferSize <= 0 {
			errs = append(errs, errors.New("audit.buffer_size must be positive"))
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("ratelimit.requests_per_second and ratelimit.burst must be positive"))
	}

	return errors.Join(errs...)
}

func validStore(s string) bool {
	return s == StorageMemory || s == StorageBadger
}
