package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Mail channel
	MailAPIURL        string
	MailAPIKey        string
	MailFromAddress   string
	MailFromName      string
	MailReplyTo       string
	MailRatePerMinute int

	// Digest recipients (comma-separated addresses)
	AlertRecipients []string

	// Alert thresholds (miles)
	OilIntervalMiles   int64
	OilWarningMiles    int64
	BrakeIntervalMiles int64
	BrakeWarningMiles  int64
	TireIntervalMiles  int64
	TireWarningMiles   int64

	// Document expiry warning window (days)
	DocumentWarningDays int

	// Suppression windows (days)
	ClearanceWindowDays int
	BatchWindowDays     int

	// Daily trigger
	DigestHour     int
	DigestMinute   int
	DigestTimezone string

	// Pipeline tuning
	EvalWorkers        int
	PassTimeoutSeconds int
	AlertCacheTTLHours int

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8002"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "fleet_user"),
		DBPassword:          getEnv("DB_PASSWORD", "fleet_password"),
		DBName:              getEnv("DB_NAME", "fleet_maintenance"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		MailAPIURL:          getEnv("MAIL_API_URL", "https://api.sendgrid.com/v3"),
		MailAPIKey:          getEnv("MAIL_API_KEY", ""),
		MailFromAddress:     getEnv("MAIL_FROM_ADDRESS", "fleet@st20medic.org"),
		MailFromName:        getEnv("MAIL_FROM_NAME", "Fleet Maintenance"),
		MailReplyTo:         getEnv("MAIL_REPLY_TO", ""),
		MailRatePerMinute:   getEnvInt("MAIL_RATE_PER_MINUTE", 60),
		AlertRecipients:     splitList(getEnv("ALERT_RECIPIENTS", "")),
		OilIntervalMiles:    getEnvInt64("OIL_INTERVAL_MILES", 5000),
		OilWarningMiles:     getEnvInt64("OIL_WARNING_MILES", 500),
		BrakeIntervalMiles:  getEnvInt64("BRAKE_INTERVAL_MILES", 25000),
		BrakeWarningMiles:   getEnvInt64("BRAKE_WARNING_MILES", 2500),
		TireIntervalMiles:   getEnvInt64("TIRE_INTERVAL_MILES", 40000),
		TireWarningMiles:    getEnvInt64("TIRE_WARNING_MILES", 4000),
		DocumentWarningDays: getEnvInt("DOCUMENT_WARNING_DAYS", 30),
		ClearanceWindowDays: getEnvInt("CLEARANCE_WINDOW_DAYS", 7),
		BatchWindowDays:     getEnvInt("BATCH_WINDOW_DAYS", 7),
		DigestHour:          getEnvInt("DIGEST_HOUR", 7),
		DigestMinute:        getEnvInt("DIGEST_MINUTE", 0),
		DigestTimezone:      getEnv("DIGEST_TIMEZONE", "America/New_York"),
		EvalWorkers:         getEnvInt("EVAL_WORKERS", 4),
		PassTimeoutSeconds:  getEnvInt("PASS_TIMEOUT_SECONDS", 60),
		AlertCacheTTLHours:  getEnvInt("ALERT_CACHE_TTL_HOURS", 26),
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:        splitList(getEnv("VALID_API_KEYS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
