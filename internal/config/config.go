package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string // empty keeps run history in memory
	LogLevel string

	JWTSecret   string
	TokenExpiry time.Duration
	// Operator credentials checked by /login
	OperatorUsername     string
	OperatorPasswordHash string

	CBRURL         string
	BankMargin     float64
	RedisAddr      string // empty caches the key rate in memory
	KeyRateTTL     time.Duration
	KeyRateRefresh string // cron spec

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string
	NotifyAll    bool

	TuningFile   string
	SessionTTL   time.Duration
	SessionSweep string // cron spec
	RateLimit    float64
	RateBurst    int
}

// NewConfig loads configuration from environment variables, reading .env first when present
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load .env: %v", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBConn:   getEnv("DB_CONN", ""),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		JWTSecret:            getEnv("JWT_SECRET", "secret"),
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "planner"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),

		CBRURL:         getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		KeyRateRefresh: getEnv("KEY_RATE_REFRESH", "0 */6 * * *"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "planner@localhost"),
		NotifyEmail:  getEnv("NOTIFY_EMAIL", ""),

		TuningFile:   getEnv("OPTIMIZER_TUNING_FILE", ""),
		SessionSweep: getEnv("SESSION_SWEEP", "*/10 * * * *"),
	}

	var err error
	if cfg.TokenExpiry, err = getDuration("TOKEN_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.KeyRateTTL, err = getDuration("KEY_RATE_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BankMargin, err = getFloat("BANK_MARGIN", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getFloat("RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = strconv.Atoi(getEnv("RATE_BURST", "10")); err != nil {
		return nil, fmt.Errorf("RATE_BURST must be an integer: %w", err)
	}
	if cfg.NotifyAll, err = strconv.ParseBool(getEnv("NOTIFY_ALL", "false")); err != nil {
		return nil, fmt.Errorf("NOTIFY_ALL must be a boolean: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.OperatorPasswordHash == "" {
		return nil, fmt.Errorf("OPERATOR_PASSWORD_HASH is required")
	}
	if cfg.SMTPHost != "" && cfg.NotifyEmail == "" {
		return nil, fmt.Errorf("NOTIFY_EMAIL is required when SMTP_HOST is set")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether run summaries should be emailed
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.NotifyEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
