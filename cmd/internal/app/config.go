package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	authapi "authd/cmd/internal/auth/api"
	"authd/cmd/internal/auth/session"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

// Config contains all runtime configuration loaded from AUTHD_* environment variables.
type Config struct {
	ServiceName string `env:"SERVICE_NAME"`

	HTTPAddr  string `env:"HTTP_ADDR"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES"`

	// Store selection: DatabaseURL wins, then SQLitePath, then memory.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS"`
	DBMinConns  int32  `env:"DB_MIN_CONNS"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"`

	// If true, /readyz returns 503 while running on the in-memory store.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	Password password.Config
	Token    token.Config
	API      authapi.Config
}

// DefaultConfig returns the development defaults. Token.Secret is empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		ServiceName: "auth-api",

		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns:  10,
		AutoMigrate: true,

		CORSAllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
			"http://localhost:8080",
		},
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,

		Password: password.DefaultConfig(),
		Token:    token.DefaultConfig(),
		API:      authapi.DefaultConfig(),
	}
}

// LoadConfig overlays the environment on DefaultConfig in one pass and
// validates the result. AUTHD_SECRET_KEY is removed from the environment
// once read.
func LoadConfig() (Config, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return Config{}, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig is LoadConfig without the security policy. Operator tooling
// that never signs tokens uses it.
func ParseConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Token.Secret = strings.TrimSpace(cfg.Token.Secret)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.SQLitePath = strings.TrimSpace(cfg.SQLitePath)
	cfg.CORSAllowedOrigins = cleanOrigins(cfg.CORSAllowedOrigins)
	return cfg, nil
}

// SessionConfig derives the identity service settings.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Policy:   c.Password.Policy,
		TokenTTL: c.Token.TTL,
	}
}

// Backend names the store LoadConfig selected.
func (c Config) Backend() string {
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

func cleanOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
