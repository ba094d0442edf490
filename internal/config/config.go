package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string
	LogFormat   string

	SessionTTL      time.Duration
	WorkflowTimeout time.Duration

	RateLimitPerMinute      int
	RateLimitBurst          int
	LoginRateLimitPerMinute int
	LoginRateLimitBurst     int
	// TrustedProxies are the addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies          []string

	// BootstrapAdmin seeds an ADMIN_HR account at startup when set.
	BootstrapAdminUser     string
	BootstrapAdminPassword string

	NotifyEnabled     bool
	NotifyInterval    time.Duration
	NotifyBatchSize   int
	NotifyMaxAttempts int
	NotifyProvider    string
	NotifyRecipient   string
	NotifyWebhookURL  string
	NotifyWebhookKey  string
	NotifyTelegramKey string
}

// Load reads the service configuration from the environment, after loading
// an optional .env file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		LogLevel:                readString("LOG_LEVEL", "info"),
		LogFormat:               readString("LOG_FORMAT", "text"),
		SessionTTL:              time.Duration(readInt("SESSION_TTL_HOURS", 8)) * time.Hour,
		WorkflowTimeout:         readDurationSeconds("WORKFLOW_TIMEOUT_SECONDS", 5),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		LoginRateLimitPerMinute: readInt("LOGIN_RATE_LIMIT_PER_MIN", 10),
		LoginRateLimitBurst:     readInt("LOGIN_RATE_LIMIT_BURST", 5),
		TrustedProxies:          readList("TRUSTED_PROXIES"),
		BootstrapAdminUser:      os.Getenv("BOOTSTRAP_ADMIN_USER"),
		BootstrapAdminPassword:  os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		NotifyEnabled:           readBool("NOTIFY_ENABLED", true),
		NotifyInterval:          readDurationSeconds("NOTIFY_POLL_INTERVAL_SECONDS", 10),
		NotifyBatchSize:         readInt("NOTIFY_BATCH_SIZE", 50),
		NotifyMaxAttempts:       readInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyProvider:          readString("NOTIFY_PROVIDER", "log"),
		NotifyRecipient:         os.Getenv("NOTIFY_RECIPIENT"),
		NotifyWebhookURL:        os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookKey:        os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		NotifyTelegramKey:       os.Getenv("NOTIFY_TELEGRAM_TOKEN"),
	}
}

// NewLogger builds a logrus logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func readString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
