package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"

	defaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

type Config struct {
	Logs      LogConfig
	Stripe    StripeConfig
	Firebase  FirebaseConfig
	Store     StoreConfig
	DB        PostgresConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	QueueURL  string
	Port      string `validate:"required,numeric"`
}

type LogConfig struct {
	Style string `validate:"omitempty,oneof=json console"`
	Level string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// PublicURL is the externally reachable base URL used to build redirect URLs.
	PublicURL string `validate:"omitempty,url"`
}

type FirebaseConfig struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
	JWKSURL     string `validate:"omitempty,url"`
}

type StoreConfig struct {
	Driver string `validate:"oneof=firestore postgres memory"`
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
}

type RateLimitConfig struct {
	RPS   float64 `validate:"gte=0"`
	Burst int     `validate:"gte=0"`
}

var validate = validator.New()

func LoadConfig() (*Config, error) {
	rps, err := floatEnv("RATE_LIMIT_RPS", 2)
	if err != nil {
		return nil, err
	}
	burst, err := intEnv("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}

	publicURL := strings.TrimSpace(os.Getenv("PUBLIC_URL"))
	if publicURL == "" {
		// Netlify exposes the site URL as URL.
		publicURL = strings.TrimSpace(os.Getenv("URL"))
	}

	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Port:     envOr("PORT", "8080"),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PublicURL:     strings.TrimRight(publicURL, "/"),
		},
		Firebase: FirebaseConfig{
			ProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
			ClientEmail: os.Getenv("FIREBASE_CLIENT_EMAIL"),
			// Keys pasted into env dashboards usually carry escaped newlines.
			PrivateKey: strings.ReplaceAll(os.Getenv("FIREBASE_PRIVATE_KEY"), `\n`, "\n"),
			JWKSURL:    envOr("AUTH_JWKS_URL", defaultJWKSURL),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(envOr("STORE_DRIVER", StoreFirestore)),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     envOr("POSTGRES_PORT", "5432"),
			Database: os.Getenv("POSTGRES_DB"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Driver == StoreFirestore && cfg.Firebase.ProjectID == "" {
		return nil, fmt.Errorf("invalid config: FIREBASE_PROJECT_ID is required for the firestore store")
	}
	if cfg.Store.Driver == StorePostgres && cfg.DB.URL == "" {
		return nil, fmt.Errorf("invalid config: POSTGRES_URL is required for the postgres store")
	}

	return cfg, nil
}

// Issuer is the token issuer Firebase uses for ID tokens of this project.
func (c FirebaseConfig) Issuer() string {
	if c.ProjectID == "" {
		return ""
	}
	return "https://securetoken.google.com/" + c.ProjectID
}

// DSN builds the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.URL, c.Port),
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("error converting string to float: %s: %w", key, err)
	}
	return f, nil
}
