// Package config provides configuration for the Tuttiud setup platform.
//
// Configuration is read from the environment exactly once at process start
// and validated there; components receive the values they need explicitly
// through their constructors and never read the environment mid-request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Environment Environment

	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// DatabaseURL is the control-store Postgres DSN.
	DatabaseURL string

	// JWTSecret verifies bearer tokens issued by the control store's
	// identity service.
	JWTSecret string

	// EncryptionKey is the symmetric key material for the credential
	// cipher: either a base64-encoded 32-byte key or a passphrase.
	EncryptionKey string

	// AllowedOrigins for CORS. Empty allows all origins in dev mode only.
	AllowedOrigins []string

	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is a duration string for rate limiting (e.g. "1m").
	RateLimitPeriod string
}

// Load reads and validates configuration from the environment. Missing
// required values are reported together so operators fix them in one pass;
// secret values are named but never echoed.
func Load() (*Config, error) {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	cfg := &Config{
		Environment:       env,
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		RateLimitRequests: getEnvInt64("RATE_LIMIT_REQUESTS", 100),
		RateLimitPeriod:   getEnv("RATE_LIMIT_PERIOD", "1m"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if env == EnvProduction && len(cfg.AllowedOrigins) == 0 {
		return nil, errors.New("CORS_ORIGINS must be set in production")
	}

	return cfg, nil
}

// getEnv reads a string from an environment variable with a default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt64 reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
