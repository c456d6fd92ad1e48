package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName             = "offramp"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultGatewayTimeout      = 15 * time.Second
	defaultApprovalPoll        = 5 * time.Second
	defaultApprovalWaitTimeout = 10 * time.Minute
	defaultValidateRatePerMin  = 30
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	GatewayRPS     float64

	ApprovalPollInterval time.Duration
	ApprovalWaitTimeout  time.Duration
	ValidateRatePerMin   int

	DatabaseURL    string
	RedisURL       string
	RabbitMQURL    string
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	FingerprintKey string

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// LoadDotEnv loads variables from the given files, skipping files that do not exist.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		GatewayBaseURL: os.Getenv("GATEWAY_BASE_URL"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		JWTAudience:    os.Getenv("JWT_AUDIENCE"),
		FingerprintKey: os.Getenv("FINGERPRINT_KEY"),
	}

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", defaultShutdownDelay, &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", defaultIdempotencyTTL, &cfg.IdempotencyTTL},
		{"GATEWAY_TIMEOUT", defaultGatewayTimeout, &cfg.GatewayTimeout},
		{"APPROVAL_POLL_INTERVAL", defaultApprovalPoll, &cfg.ApprovalPollInterval},
		{"APPROVAL_WAIT_TIMEOUT", defaultApprovalWaitTimeout, &cfg.ApprovalWaitTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv("GATEWAY_RPS"); v != "" {
		cfg.GatewayRPS, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.GatewayRPS < 0 {
			return Config{}, fmt.Errorf("invalid GATEWAY_RPS: %q", v)
		}
	}

	cfg.ValidateRatePerMin = defaultValidateRatePerMin
	if v := os.Getenv("VALIDATE_RATE_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid VALIDATE_RATE_PER_MIN: %q", v)
		}
		cfg.ValidateRatePerMin = n
	}

	if cfg.GatewayBaseURL == "" {
		return Config{}, fmt.Errorf("GATEWAY_BASE_URL must be set")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or bare seconds ("90").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
