// Package config defines service configuration and its layered loading:
// defaults, then an optional YAML file, then VG360_-prefixed environment
// variables.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// DataDir holds the sqlite database file.
	DataDir string `koanf:"data_dir"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// JWTSecret signs admin tokens. Empty disables the protected routes.
	JWTSecret string `koanf:"jwt_secret"`

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RedisAddr enables Redis-backed rate limiting when set; empty falls
	// back to the in-process limiter.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// RateLimitPerMinute bounds requests per client per minute.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// SnapshotHourUTC is the UTC hour the daily snapshot batch runs at.
	SnapshotHourUTC int `koanf:"snapshot_hour_utc"`

	// WindowDays is the trailing aggregation window for daily snapshots.
	WindowDays int `koanf:"window_days"`
}

func defaults() *Config {
	return &Config{
		Addr:               ":8090",
		DataDir:            "./data",
		LogLevel:           "info",
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitPerMinute: 120,
		SnapshotHourUTC:    5,
		WindowDays:         30,
	}
}

// Load builds a Config by layering defaults, an optional YAML file named by
// VG360_CONFIG, and VG360_-prefixed environment variables, in that order of
// precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("VG360_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// VG360_RATE_LIMIT_PER_MINUTE -> rate_limit_per_minute
	envProvider := env.Provider("VG360_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "vg360_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.WindowDays <= 0 {
		return nil, errors.New("window_days must be positive")
	}
	if cfg.SnapshotHourUTC < 0 || cfg.SnapshotHourUTC > 23 {
		return nil, errors.New("snapshot_hour_utc must be between 0 and 23")
	}
	return &cfg, nil
}
