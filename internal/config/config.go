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

// insecureDefaultSecret is the placeholder shipped in .env.example. It is
// rejected outside development mode.
const insecureDefaultSecret = "your-secret-key"

const minSecretLength = 32

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Name           string
	Env            string
	AllowedOrigins []string
}

func (a AppConfig) Development() bool {
	return a.Env == "development"
}

type HTTPConfig struct {
	Addr string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	Addr     string
	Password string
}

type AuthConfig struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	CSRFRelaxed     bool
	SessionTTL      time.Duration
	LoginRateLimit  int
	RateWindow      time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present (development convenience; real
// environment variables win).
func Load() (Config, error) {
	_ = godotenv.Load()

	env := getenv("APP_ENV", "production")

	cfg := Config{
		App: AppConfig{
			Name:           getenv("APP_NAME", "AiCMR"),
			Env:            env,
			AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR", ":8080"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Auth: AuthConfig{
			SecretKey: os.Getenv("SECRET_KEY"),
		},
	}

	var err error
	if cfg.Auth.AccessTokenTTL, err = parseDuration("ACCESS_TOKEN_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Auth.RefreshTokenTTL, err = parseDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Auth.ResetTokenTTL, err = parseDuration("RESET_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Auth.SessionTTL, err = parseDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Auth.RateWindow, err = parseDuration("RATE_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Auth.LoginRateLimit, err = parseInt("LOGIN_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.Auth.CSRFRelaxed, err = parseBool("CSRF_RELAXED", cfg.App.Development()); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces startup invariants. The signing secret is mandatory;
// the known-insecure default and short secrets are rejected outside
// development mode.
func (c Config) Validate() error {
	switch c.App.Env {
	case "development", "production":
	default:
		return fmt.Errorf("%w: APP_ENV must be development or production, got %q", ErrInvalidConfig, c.App.Env)
	}

	secret := c.Auth.SecretKey
	if secret == "" {
		return fmt.Errorf("%w: SECRET_KEY is required", ErrInvalidConfig)
	}
	if secret == insecureDefaultSecret && !c.App.Development() {
		return fmt.Errorf("%w: SECRET_KEY is the insecure default; set a real secret", ErrInvalidConfig)
	}
	if len(secret) < minSecretLength && !c.App.Development() {
		return fmt.Errorf("%w: SECRET_KEY must be at least %d bytes", ErrInvalidConfig, minSecretLength)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.ResetTokenTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrInvalidConfig)
	}

	// Relaxed CSRF lets unverified cross-site writes through. Development only.
	if c.Auth.CSRFRelaxed && !c.App.Development() {
		return fmt.Errorf("%w: CSRF_RELAXED is not allowed outside development", ErrInvalidConfig)
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, key, err)
	}
	return b, nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
