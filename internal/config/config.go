package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Skotchmaster/tachyon_hub/pkg/config"
)

type Config struct {
	Addr string

	APIBaseURL    string
	AuthKey       string
	DefaultAPIKey string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURL  string

	SessionSecret          []byte
	SessionTTL             time.Duration
	SessionRefreshInterval time.Duration

	UpstreamTimeout time.Duration
	HealthTimeout   time.Duration
	HealthInterval  time.Duration
	// JoinLimit bounds concurrent uploader lookups while listing codes.
	JoinLimit int

	DatabaseURL  string
	KafkaBrokers []string
	RedisURL     string

	LogLevel     string
	FrontendURL  string
	CookieSecure bool
}

// FromEnv reads the process environment. Missing required values are reported together.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                   pkgconfig.EnvDefault("HUB_ADDR", ":8080"),
		APIBaseURL:             strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		AuthKey:                os.Getenv("AUTH_KEY"),
		DefaultAPIKey:          os.Getenv("DEFAULT_API_KEY"),
		DiscordClientID:        os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret:    os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURL:     os.Getenv("DISCORD_REDIRECT_URL"),
		SessionSecret:          []byte(os.Getenv("SESSION_SECRET")),
		SessionTTL:             pkgconfig.EnvDurationDefault("SESSION_TTL", 30*24*time.Hour),
		SessionRefreshInterval: pkgconfig.EnvDurationDefault("SESSION_REFRESH_INTERVAL", time.Minute),
		UpstreamTimeout:        pkgconfig.EnvDurationDefault("UPSTREAM_TIMEOUT", 15*time.Second),
		HealthTimeout:          pkgconfig.EnvDurationDefault("HEALTH_TIMEOUT", 5*time.Second),
		HealthInterval:         pkgconfig.EnvDurationDefault("HEALTH_INTERVAL", 30*time.Second),
		JoinLimit:              pkgconfig.EnvIntDefault("UPLOADER_JOIN_LIMIT", 8),
		DatabaseURL:            pkgconfig.EnvDefault("DATABASE_URL", "hub.db"),
		KafkaBrokers:           pkgconfig.CSV(os.Getenv("KAFKA_BROKERS")),
		RedisURL:               os.Getenv("REDIS_URL"),
		LogLevel:               pkgconfig.EnvDefault("LOG_LEVEL", "info"),
		FrontendURL:            pkgconfig.EnvDefault("FRONTEND_URL", "/"),
		CookieSecure:           pkgconfig.EnvBoolDefault("COOKIE_SECURE", true),
	}

	var errs []error
	for env, v := range map[string]string{
		"API_BASE_URL":          cfg.APIBaseURL,
		"DISCORD_CLIENT_ID":     cfg.DiscordClientID,
		"DISCORD_CLIENT_SECRET": cfg.DiscordClientSecret,
		"DISCORD_REDIRECT_URL":  cfg.DiscordRedirectURL,
		"SESSION_SECRET":        string(cfg.SessionSecret),
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env %s", env))
		}
	}
	if cfg.APIBaseURL != "" {
		if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("API_BASE_URL must be an absolute url"))
		}
	}
	if len(cfg.SessionSecret) > 0 && len(cfg.SessionSecret) < 32 {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least 32 bytes"))
	}
	return cfg, errors.Join(errs...)
}

// Load reads .env when present and exits on invalid configuration.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found: %v. Using system environment variables", err)
	}
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthKey == "" {
		log.Printf("warning: AUTH_KEY is empty, admin backend calls will fail with 500")
	}
	if cfg.DefaultAPIKey == "" {
		log.Printf("warning: DEFAULT_API_KEY is empty, public backend calls will fail with 500")
	}
	return cfg
}
