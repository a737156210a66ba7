// Package config loads runtime configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// MemoryDSN selects the in-memory chat store.
	MemoryDSN = "memory"

	RelayNone  = "none"
	RelayRedis = "redis"
	RelayNATS  = "nats"
)

// Config is the process-wide configuration.
type Config struct {
	Env      string
	HTTPAddr string
	NodeID   string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RelayBackend string
	NATSURL      string

	JWTSecret string
	JWTIssuer string

	RelayAppID    string
	RelayAppCert  string
	RelayTokenTTL time.Duration

	CallInviteTimeout time.Duration

	UploadDir      string
	UploadBaseURL  string
	UploadMaxBytes int64

	AllowedOrigins []string
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	loadErr := godotenv.Load()

	host, _ := os.Hostname()
	cfg := &Config{
		Env:      getEnv("APP_ENV", EnvDevelopment),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		NodeID:   getEnv("NODE_ID", host),

		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=skillswap port=5432 sslmode=disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		RelayBackend: strings.ToLower(getEnv("RELAY_BACKEND", RelayNone)),
		NATSURL:      getEnv("NATS_URL", "nats://127.0.0.1:4222"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "skillswap"),

		RelayAppID:    getEnv("RELAY_APP_ID", ""),
		RelayAppCert:  getEnv("RELAY_APP_CERT", ""),
		RelayTokenTTL: getDuration("RELAY_TOKEN_TTL", DefaultRelayTokenTTL),

		CallInviteTimeout: getDuration("CALL_INVITE_TIMEOUT", DefaultCallInviteTimeout),

		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		UploadBaseURL:  getEnv("UPLOAD_BASE_URL", "/media"),
		UploadMaxBytes: int64(getInt("UPLOAD_MAX_BYTES", DefaultUploadMaxBytes)),

		AllowedOrigins: splitList(getEnv("WS_ALLOWED_ORIGINS", "")),
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "node-1"
	}

	if cfg.Env == EnvDevelopment {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-only-secret"
		}
		if cfg.RelayAppCert == "" {
			cfg.RelayAppCert = "dev-only-relay-cert"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", loadErr)
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.RelayAppCert == "" {
		return errors.New("RELAY_APP_CERT must be set")
	}
	switch c.RelayBackend {
	case RelayNone, RelayNATS:
	case RelayRedis:
		if c.RedisAddr == "" {
			return errors.New("RELAY_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown RELAY_BACKEND %q", c.RelayBackend)
	}
	if c.DatabaseDSN == MemoryDSN && c.Env != EnvDevelopment {
		return errors.New("DATABASE_DSN=memory is only allowed in development")
	}
	if c.CallInviteTimeout <= 0 {
		return errors.New("CALL_INVITE_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
