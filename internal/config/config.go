// Package config loads process configuration from the environment and
// validates it once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/database"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

var requiredKeys = []string{
	"ACCESS_TOKEN_SECRET_KEY",
	"ACCESS_TOKEN_EXPIRY",
	"REFRESH_TOKEN_SECRET_KEY",
	"REFRESH_TOKEN_EXPIRY",
}

type Config struct {
	Auth               auth.Config
	HTTPAddr           string
	StoreBackend       string
	Database           database.Config
	Mongo              database.MongoConfig
	RedisURL           string
	LoginRatePerMinute int

	// MigrateOnStart applies pending PostgreSQL migrations before serving.
	MigrateOnStart bool
}

// Load reads the environment. Every missing required key is reported at once.
func Load() (Config, error) {
	var missing []string
	for _, k := range requiredKeys {
		if strings.TrimSpace(os.Getenv(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing %s", auth.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	accessExpiry, err := parseExpiry(os.Getenv("ACCESS_TOKEN_EXPIRY"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: ACCESS_TOKEN_EXPIRY: %v", auth.ErrInvalidConfig, err)
	}
	refreshExpiry, err := parseExpiry(os.Getenv("REFRESH_TOKEN_EXPIRY"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: REFRESH_TOKEN_EXPIRY: %v", auth.ErrInvalidConfig, err)
	}

	cost, err := intFromEnv("BCRYPT_COST", auth.DefaultHashCost)
	if err != nil {
		return Config{}, err
	}
	rate, err := intFromEnv("LOGIN_RATE_PER_MINUTE", 10)
	if err != nil {
		return Config{}, err
	}
	if rate <= 0 {
		return Config{}, fmt.Errorf("%w: LOGIN_RATE_PER_MINUTE must be positive", auth.ErrInvalidConfig)
	}
	migrateOnStart := false
	if v := strings.TrimSpace(os.Getenv("MIGRATE_ON_START")); v != "" {
		if migrateOnStart, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%w: MIGRATE_ON_START: %v", auth.ErrInvalidConfig, err)
		}
	}

	cfg := Config{
		Auth: auth.Config{
			AccessSecretKey:  os.Getenv("ACCESS_TOKEN_SECRET_KEY"),
			AccessExpiry:     accessExpiry,
			RefreshSecretKey: os.Getenv("REFRESH_TOKEN_SECRET_KEY"),
			RefreshExpiry:    refreshExpiry,
			HashCost:         cost,
		},
		HTTPAddr:           envOr("HTTP_ADDR", "0.0.0.0:8431"),
		StoreBackend:       envOr("STORE_BACKEND", BackendPostgres),
		Database:           database.ConfigFromEnv(),
		Mongo:              database.MongoConfigFromEnv(),
		RedisURL:           os.Getenv("REDIS_URL"),
		LoginRatePerMinute: rate,
		MigrateOnStart:     migrateOnStart,
	}

	if cfg.StoreBackend != BackendPostgres && cfg.StoreBackend != BackendMongo {
		return Config{}, fmt.Errorf("%w: STORE_BACKEND %q is not one of %s, %s",
			auth.ErrInvalidConfig, cfg.StoreBackend, BackendPostgres, BackendMongo)
	}
	if err := cfg.Auth.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseExpiry accepts bare integer seconds ("86400"), whole days ("7d") and
// anything time.ParseDuration understands ("15m", "168h").
func parseExpiry(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", auth.ErrInvalidConfig, key, err)
	}
	return n, nil
}
