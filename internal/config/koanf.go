package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dispatch/config.yaml",
}

// envMappings maps environment variables to koanf paths. Only listed
// variables are read so unrelated environment noise never leaks in.
var envMappings = map[string]string{
	"HTTP_PORT":                      "server.port",
	"HTTP_READ_TIMEOUT":              "server.read_timeout",
	"HTTP_WRITE_TIMEOUT":             "server.write_timeout",
	"SHUTDOWN_TIMEOUT":               "server.shutdown_timeout",
	"GIN_MODE":                       "server.mode",
	"TRACKING_MIN_UPDATE_INTERVAL":   "tracking.min_update_interval",
	"TRACKING_EXPIRATION":            "tracking.expiration",
	"TRACKING_SWEEP_INTERVAL":        "tracking.sweep_interval",
	"TRACKING_EVENT_BUFFER":          "tracking.event_buffer",
	"STORAGE_DRIVER":                 "storage.driver",
	"STORAGE_PATH":                   "storage.path",
	"JWT_SECRET":                     "auth.jwt_secret",
	"JWT_ISSUER":                     "auth.issuer",
	"JWT_TOKEN_TTL":                  "auth.token_ttl",
	"AUTH_POLICY_PATH":               "auth.policy_path",
	"WS_ALLOWED_ORIGINS":             "realtime.allowed_origins",
	"WS_CLIENT_BUFFER":               "realtime.client_buffer",
	"EVENT_BUS_BUFFER":               "realtime.bus_buffer",
	"EVENT_BUS_BREAKER_FAILURES":     "realtime.breaker_failures",
	"EVENT_BUS_BREAKER_TIMEOUT":      "realtime.breaker_timeout",
	"AUDIT_ENABLED":                  "audit.enabled",
	"AUDIT_BUFFER_SIZE":              "audit.buffer_size",
	"AUDIT_STORE":                    "audit.store",
	"AUDIT_PATH":                     "audit.path",
	"AUDIT_MAX_EVENTS":               "audit.max_events",
	"RATE_LIMIT_ENABLED":             "ratelimit.enabled",
	"RATE_LIMIT_REQUESTS_PER_SECOND": "ratelimit.requests_per_second",
	"RATE_LIMIT_BURST":               "ratelimit.burst",
	"LOG_LEVEL":                      "logging.level",
	"LOG_FORMAT":                     "logging.format",
	"LOG_CALLER":                     "logging.caller",
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"realtime.allowed_origins",
}

// LoadWithKoanf loads configuration in three layers:
//  1. Defaults from NewDefaultConfig
//  2. The YAML file at path (or the first DefaultConfigPaths hit), if any
//  3. Environment variables listed in envMappings
//
// The result is validated before it is returned.
func LoadWithKoanf(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(NewDefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(path); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// findConfigFile resolves the file to load. An explicit path wins, then
// CONFIG_PATH, then the defaults. Returns "" when nothing exists.
func findConfigFile(explicit string) string {
	candidates := make([]string, 0, len(DefaultConfigPaths)+2)
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, DefaultConfigPaths...)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps an environment variable name to its koanf path. An
// empty result tells koanf to skip the variable.
func envTransform(key string) string {
	return envMappings[strings.ToUpper(key)]
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var values []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
