package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	NotifyWebhookURL string

	WorkerPollInterval      time.Duration
	WorkerLease             time.Duration
	WorkerKeepaliveInterval time.Duration
	JobMaxRetries           int
	ResetGracePeriod        time.Duration
	SweepInterval           time.Duration
	RetentionWindow         time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),

		WorkerPollInterval:      time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		WorkerLease:             time.Second * time.Duration(getEnvInt("WORKER_LEASE_SECONDS", 120)),
		WorkerKeepaliveInterval: time.Second * time.Duration(getEnvInt("WORKER_KEEPALIVE_SECONDS", 30)),
		JobMaxRetries:           getEnvInt("JOB_MAX_RETRIES", 3),
		ResetGracePeriod:        time.Second * time.Duration(getEnvInt("RESET_GRACE_SECONDS", 300)),
		SweepInterval:           time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 3600)),
		RetentionWindow:         time.Hour * 24 * time.Duration(getEnvInt("RETENTION_DAYS", 7)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerLease <= cfg.WorkerKeepaliveInterval {
		return nil, fmt.Errorf("WORKER_LEASE_SECONDS must exceed WORKER_KEEPALIVE_SECONDS")
	}

	if cfg.JobMaxRetries < 0 {
		return nil, fmt.Errorf("JOB_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
