package authapi

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config controls auth API behavior.
type Config struct {
	// PathPrefix is prepended to every auth route.
	PathPrefix   string `env:"API_PREFIX"`
	MaxBodyBytes int64  `env:"MAX_BODY_BYTES"`
}

// DefaultConfig mounts routes under /api/v1 and caps bodies at 1 MiB.
func DefaultConfig() Config {
	return Config{
		PathPrefix:   "/api/v1",
		MaxBodyBytes: 1 << 20,
	}
}

// LoadConfigFromEnv overlays AUTHD_API_PREFIX and AUTHD_MAX_BODY_BYTES on the defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	c.PathPrefix = "/" + strings.Trim(strings.TrimSpace(c.PathPrefix), "/")
	if c.PathPrefix == "/" {
		c.PathPrefix = ""
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	return c
}
