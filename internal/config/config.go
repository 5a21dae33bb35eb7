package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName           = "StratoCard"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultProviderTimeout   = 10 * time.Second
	defaultWebhookMaxAge     = 300 * time.Second
	defaultWebhookClockSkew  = 60 * time.Second
	defaultWebhookReplayTTL  = 60 * time.Second
	defaultWebhookDedupTTL   = time.Hour
	defaultWebhookRatePerMin = 120
	defaultReconcileWorkers  = 4
	defaultDebtDueDays       = 30
	defaultDebtDailyRate     = 0.001
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	ProviderBaseURL      string
	ProviderAuthMode     string // "bearer" or "password"
	ProviderSecret       string
	ProviderClientID     string
	ProviderClientSecret string
	ProviderTimeout      time.Duration

	WebhookSecret        string
	WebhookMaxAge        time.Duration
	WebhookClockSkew     time.Duration
	WebhookReplayGuard   time.Duration
	WebhookDedupTTL      time.Duration
	WebhookRatePerMinute int
	WebhookAllowInsecure bool

	ReconcileWorkers    int
	ReconcileDriftAlert int64

	DebtDueDays   int
	DebtDailyRate float64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,

		ProviderBaseURL:      os.Getenv("PROVIDER_BASE_URL"),
		ProviderAuthMode:     strings.ToLower(getEnv("PROVIDER_AUTH_MODE", "bearer")),
		ProviderSecret:       os.Getenv("PROVIDER_SECRET"),
		ProviderClientID:     os.Getenv("PROVIDER_CLIENT_ID"),
		ProviderClientSecret: os.Getenv("PROVIDER_CLIENT_SECRET"),
		ProviderTimeout:      defaultProviderTimeout,

		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		WebhookMaxAge:        defaultWebhookMaxAge,
		WebhookClockSkew:     defaultWebhookClockSkew,
		WebhookReplayGuard:   defaultWebhookReplayTTL,
		WebhookDedupTTL:      defaultWebhookDedupTTL,
		WebhookRatePerMinute: defaultWebhookRatePerMin,

		ReconcileWorkers: defaultReconcileWorkers,

		DebtDueDays:   defaultDebtDueDays,
		DebtDailyRate: defaultDebtDailyRate,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = durationEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WebhookMaxAge, err = durationEnv("WEBHOOK_MAX_AGE", cfg.WebhookMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.WebhookDedupTTL, err = durationEnv("WEBHOOK_DEDUP_TTL", cfg.WebhookDedupTTL); err != nil {
		return Config{}, err
	}
	if cfg.WebhookRatePerMinute, err = intEnv("WEBHOOK_RATE_PER_MINUTE", cfg.WebhookRatePerMinute); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileWorkers, err = intEnv("RECONCILE_WORKERS", cfg.ReconcileWorkers); err != nil {
		return Config{}, err
	}
	if cfg.DebtDueDays, err = intEnv("DEBT_DUE_DAYS", cfg.DebtDueDays); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RECONCILE_DRIFT_ALERT"); v != "" {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return Config{}, fmt.Errorf("invalid RECONCILE_DRIFT_ALERT: %w", perr)
		}
		cfg.ReconcileDriftAlert = n
	}
	if v := os.Getenv("DEBT_DAILY_RATE"); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return Config{}, fmt.Errorf("invalid DEBT_DAILY_RATE: %w", perr)
		}
		cfg.DebtDailyRate = f
	}
	if v := os.Getenv("WEBHOOK_ALLOW_INSECURE"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return Config{}, fmt.Errorf("invalid WEBHOOK_ALLOW_INSECURE: %w", perr)
		}
		cfg.WebhookAllowInsecure = b
	}

	// Development tolerates missing backing stores and runs on the in-memory
	// repositories; anywhere else they are mandatory.
	if cfg.DatabaseURL == "" && !cfg.IsDevelopment() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.RedisURL == "" && !cfg.IsDevelopment() {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.ProviderAuthMode != "bearer" && cfg.ProviderAuthMode != "password" {
		return Config{}, fmt.Errorf("PROVIDER_AUTH_MODE must be bearer or password, got %q", cfg.ProviderAuthMode)
	}
	if cfg.WebhookSecret == "" {
		if !cfg.WebhookAllowInsecure {
			return Config{}, fmt.Errorf("WEBHOOK_SECRET must be set unless WEBHOOK_ALLOW_INSECURE=true")
		}
		if !cfg.IsDevelopment() {
			return Config{}, fmt.Errorf("insecure webhook mode is not allowed when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in a development-like environment.
func (c Config) IsDevelopment() bool {
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

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}
