// Package config loads the core's configuration: a YAML file overlaid with
// environment variables, in the teacher's own env-overlay style.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NATSConfig configures the optional lifespan observability relay.
type NATSConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RedisConfig configures the optional process-state mirror.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures the optional pre-dispatch JWT hook.
type AuthConfig struct {
	Mode      string `yaml:"mode"` // "" (disabled) or "jwt"
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the core's full set of recognized options (spec.md §6) plus the
// optional domain-stack integrations SPEC_FULL.md adds.
type Config struct {
	Addr             string `yaml:"addr"`
	Port             int    `yaml:"port"`
	KeepAlive        bool   `yaml:"keep_alive"`
	KeepAliveSeconds int    `yaml:"keep_alive_seconds"`
	LimitConcurrency int    `yaml:"limit_concurrency"` // 0 = unlimited
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`    // 0 = unlimited
	LogLevel         string `yaml:"log_level"`
	LogPretty        bool   `yaml:"log_pretty"`
	BusCapacity      int    `yaml:"bus_capacity"`

	NATS  NATSConfig  `yaml:"nats"`
	Redis RedisConfig `yaml:"redis"`
	Auth  AuthConfig  `yaml:"auth"`
}

// Default returns the configuration used when no file is present and no
// environment overrides apply.
func Default() Config {
	return Config{
		Addr:             "127.0.0.1",
		Port:             8080,
		KeepAlive:        true,
		KeepAliveSeconds: 75,
		LimitConcurrency: 0,
		MaxBodyBytes:     0,
		LogLevel:         "info",
		LogPretty:        false,
		BusCapacity:      64,
	}
}

// Load reads path (if it exists) as YAML into Default(), then overlays
// environment variables, matching the teacher's pattern of falling back to
// os.Getenv for values a YAML file doesn't set (internal/events/publisher.go's
// NATS_URL fallback, internal/handlers/websocket_enterprise.go's
// ALLOWED_WEBSOCKET_ORIGIN_* variables).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("STREAMGATE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("STREAMGATE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("STREAMGATE_LIMIT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LimitConcurrency = n
		}
	}
	if v := os.Getenv("STREAMGATE_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("STREAMGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_USER"); v != "" {
		cfg.NATS.User = v
	}
	if v := os.Getenv("NATS_PASSWORD"); v != "" {
		cfg.NATS.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("STREAMGATE_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("STREAMGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}
