// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import "time"

// Config is the complete server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Auth      Auth      `yaml:"auth"`
	Widget    Widget    `yaml:"widget"`
	GeoIP     GeoIP     `yaml:"geoip"`
	NATS      NATS      `yaml:"nats"`
	Cache     Cache     `yaml:"cache"`
	Rate      Rate      `yaml:"rate"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server configures the HTTP listener.
type Server struct {
	Port string `yaml:"port"`
	// PublicURL is the externally reachable base URL used in share links,
	// snippets and embed.js.
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Database selects the storage driver.
type Database struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// Auth configures dashboard API tokens.
type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Widget holds per-deployment widget settings.
type Widget struct {
	// Endpoint overrides the submission URL baked into embed.js. Empty means
	// PublicURL + /api/reviews.
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

// GeoIP points at an optional GeoLite2 City database.
type GeoIP struct {
	DBPath string `yaml:"db_path"`
}

// NATS enables review events when URL is set.
type NATS struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// Cache sizes the portal settings cache.
type Cache struct {
	MaxItems int64         `yaml:"max_items"`
	TTL      time.Duration `yaml:"ttl"`
}

// Rate limits submissions per client IP.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Logging configures the slog logger.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Telemetry enables OTLP export when Endpoint is set.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config that runs locally with no external services.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			PublicURL:       "http://localhost:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "reviews.db",
		},
		Auth: Auth{
			TokenTTL: 24 * time.Hour,
		},
		Widget: Widget{
			SubmitTimeout: 10 * time.Second,
		},
		NATS: NATS{
			Stream:  "REVIEWS",
			Subject: "review.submitted",
		},
		Cache: Cache{
			MaxItems: 10000,
			TTL:      5 * time.Minute,
		},
		Rate: Rate{
			RequestsPerSecond: 1,
			Burst:             5,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "reviews",
		},
	}
}

// SubmissionEndpoint is the URL the widget posts reviews to.
func (c *Config) SubmissionEndpoint() string {
	if c.Widget.Endpoint != "" {
		return c.Widget.Endpoint
	}
	return c.Server.PublicURL + "/api/reviews"
}
