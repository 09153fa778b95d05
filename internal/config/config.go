// Package config loads daemon settings from an optional YAML file and
// WATCHDOG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultPath = "watchdog.yaml"
	envPrefix   = "WATCHDOG_"
)

// Delivery transports.
const (
	TransportSSE  = "sse"
	TransportGRPC = "grpc"
	TransportBoth = "both"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	Interactions InteractionsConfig `koanf:"interactions"`
	Delivery     DeliveryConfig     `koanf:"delivery"`
	ClickHouse   DSNConfig          `koanf:"clickhouse"`
	Postgres     DSNConfig          `koanf:"postgres"`
	Auth         AuthConfig         `koanf:"auth"`
	Capture      CaptureConfig      `koanf:"capture"`
}

type ServerConfig struct {
	HTTPAddr string `koanf:"http_addr"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type InteractionsConfig struct {
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type DeliveryConfig struct {
	Transport string        `koanf:"transport"` // sse, grpc, both
	Backoff   time.Duration `koanf:"backoff"`
	Timeout   time.Duration `koanf:"timeout"`
}

// SSE reports whether push messages go to SSE subscribers.
func (d DeliveryConfig) SSE() bool {
	return d.Transport == TransportSSE || d.Transport == TransportBoth
}

// GRPC reports whether push messages go to registered gRPC observers.
func (d DeliveryConfig) GRPC() bool {
	return d.Transport == TransportGRPC || d.Transport == TransportBoth
}

// DSNConfig is an optional backing database. An empty DSN disables it.
type DSNConfig struct {
	DSN string `koanf:"dsn"`
}

type AuthConfig struct {
	// APIKeyHashes are bcrypt hashes of accepted keys. Empty with no
	// Postgres configured leaves the API unauthenticated.
	APIKeyHashes []string      `koanf:"api_key_hashes"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

type CaptureConfig struct {
	Enabled     bool   `koanf:"enabled"`
	DevToolsURL string `koanf:"devtools_url"`
}

var defaults = map[string]any{
	"server.http_addr":            ":8080",
	"log.level":                   "info",
	"interactions.retention":      "30m",
	"interactions.sweep_interval": "1m",
	"delivery.transport":          TransportBoth,
	"delivery.backoff":            "500ms",
	"delivery.timeout":            "2s",
	"auth.cache_ttl":              "30s",
	"capture.enabled":             false,
}

// Load reads path (missing is fine), then the environment, then fills
// defaults for anything still unset. WATCHDOG_DELIVERY__BACKOFF maps to
// delivery.backoff.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return nil, fmt.Errorf("config: default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Delivery.Transport = strings.ToLower(strings.TrimSpace(cfg.Delivery.Transport))
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	durations := []struct {
		key string
		val time.Duration
	}{
		{"interactions.retention", c.Interactions.Retention},
		{"interactions.sweep_interval", c.Interactions.SweepInterval},
		{"delivery.backoff", c.Delivery.Backoff},
		{"delivery.timeout", c.Delivery.Timeout},
		{"auth.cache_ttl", c.Auth.CacheTTL},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.key, d.val)
		}
	}

	switch c.Delivery.Transport {
	case TransportSSE, TransportGRPC, TransportBoth:
	default:
		return fmt.Errorf("config: unknown delivery.transport %q", c.Delivery.Transport)
	}

	if c.Server.HTTPAddr == "" {
		return errors.New("config: server.http_addr is required")
	}
	if c.Capture.Enabled && c.Capture.DevToolsURL == "" {
		return errors.New("config: capture.devtools_url is required when capture is enabled")
	}
	return nil
}
