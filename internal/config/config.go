package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/massy-ia/citydesk/internal/logging"
)

type Config struct {
	HTTPPort    string `koanf:"http_port"`
	DatabaseURL string `koanf:"database_url"`
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`

	JWTSecret       string        `koanf:"jwt_secret"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`

	GeminiAPIKey    string  `koanf:"gemini_api_key"`
	ChatModel       string  `koanf:"chat_model"`
	EmbeddingModel  string  `koanf:"embedding_model"`
	ChatTemperature float32 `koanf:"chat_temperature"`

	GooglePlacesAPIKey string `koanf:"google_places_api_key"`
	PlacesBaseURL      string `koanf:"places_base_url"`
	SNCFAPIKey         string `koanf:"sncf_api_key"`
	SNCFBaseURL        string `koanf:"sncf_base_url"`
	RATPBaseURL        string `koanf:"ratp_base_url"`
	NewsURL            string `koanf:"news_url"`
	EventsURL          string `koanf:"events_url"`
	WebhookURL         string `koanf:"webhook_url"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	AuthRateLimit     int           `koanf:"auth_rate_limit"`

	SyncEnabled  bool          `koanf:"sync_enabled"`
	SyncInterval time.Duration `koanf:"sync_interval"`
}

// Default returns the configuration used when no override is set.
func Default() *Config {
	return &Config{
		HTTPPort:    "8080",
		DatabaseURL: "massy.db",
		LogLevel:    "info",
		LogFormat:   "json",

		AccessTokenTTL:  2 * time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,

		ChatModel:       "gemini-1.5-flash-latest",
		EmbeddingModel:  "text-embedding-004",
		ChatTemperature: 0.3,

		PlacesBaseURL: "https://maps.googleapis.com/maps/api/place",
		SNCFBaseURL:   "https://api.sncf.com/v1/coverage/sncf",
		RATPBaseURL:   "https://api-ratp.pierre-grimaud.fr/v4",
		NewsURL:       "https://www.massy.fr/nav-newsactus",
		EventsURL:     "https://www.ville-massy.fr/agenda",

		CORSOrigins:       []string{"http://localhost:3000"},
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		AuthRateLimit:     10,

		SyncEnabled:  true,
		SyncInterval: 30 * time.Minute,
	}
}

// Load layers struct defaults, an optional .env file and the process
// environment. HTTP_PORT overrides http_port, and so on.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Info().Msg("No .env file found, relying on environment variables")
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	splitListFields(k, "cors_origins")

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitListFields turns comma-separated environment values into lists.
func splitListFields(k *koanf.Koanf, keys ...string) {
	for _, key := range keys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		_ = k.Set(key, items)
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.SyncEnabled && c.SyncInterval < time.Minute {
		return errors.New("SYNC_INTERVAL must be at least one minute")
	}
	return nil
}
