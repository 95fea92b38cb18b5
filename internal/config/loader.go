package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reviews.yaml"

// Load reads .env (if present) into the process environment and returns a
// Config using defaults < YAML < ENV.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load without the .env step, reading YAML from yamlPath. The
// YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg. Empty values are ignored.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.PublicURL, "REVIEWS_PUBLIC_URL")
	setDuration(&cfg.Server.ShutdownTimeout, "REVIEWS_SHUTDOWN_TIMEOUT")

	setString(&cfg.Database.Driver, "REVIEWS_DB_DRIVER")
	setString(&cfg.Database.DSN, "REVIEWS_DB_DSN")
	// DATABASE_URL implies Postgres, the way hosted platforms hand it out.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}

	setString(&cfg.Auth.JWTSecret, "REVIEWS_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "REVIEWS_TOKEN_TTL")

	setString(&cfg.Widget.Endpoint, "REVIEWS_WIDGET_ENDPOINT")
	setString(&cfg.Widget.APIKey, "REVIEWS_WIDGET_API_KEY")
	setDuration(&cfg.Widget.SubmitTimeout, "REVIEWS_WIDGET_SUBMIT_TIMEOUT")

	setString(&cfg.GeoIP.DBPath, "REVIEWS_GEOIP_DB")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "REVIEWS_NATS_STREAM")
	setString(&cfg.NATS.Subject, "REVIEWS_NATS_SUBJECT")

	setInt64(&cfg.Cache.MaxItems, "REVIEWS_CACHE_MAX_ITEMS")
	setDuration(&cfg.Cache.TTL, "REVIEWS_CACHE_TTL")

	setFloat64(&cfg.Rate.RequestsPerSecond, "REVIEWS_RATE_RPS")
	setInt(&cfg.Rate.Burst, "REVIEWS_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "REVIEWS_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "REVIEWS_RATE_MAX_IDLE_TIME")

	setString(&cfg.Logging.Level, "REVIEWS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REVIEWS_LOG_SERVICE")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q must be sqlite or postgres", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Cache.MaxItems < 1 {
		return errors.New("cache.max_items must be >= 1")
	}
	if cfg.Widget.SubmitTimeout <= 0 {
		return errors.New("widget.submit_timeout must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
