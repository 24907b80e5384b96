package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	// Database
	DBDriver string
	DBDSN    string

	JWTSecret string

	// Redis (idempotency keys). Empty addr disables the cache.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	// RabbitMQ (reservation events). Empty URL disables publishing.
	RabbitURL      string
	RabbitExchange string

	// Booking engine
	MaxBookingAttempts int

	// Reminders
	ReminderEnabled  bool
	ReminderHour     int
	ReminderTimezone string

	// HTTP
	RateLimitRPS      float64
	RateLimitBurst    int
	CORSAllowedOrigin string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getInt("REDIS_DB", 0),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		RabbitURL:      getEnv("RABBITMQ_URL", ""),
		RabbitExchange: getEnv("RABBITMQ_EXCHANGE", "reservations"),

		MaxBookingAttempts: getInt("BOOKING_MAX_ATTEMPTS", 3),

		ReminderEnabled:  getBool("REMINDER_ENABLED", false),
		ReminderHour:     getInt("REMINDER_HOUR", 9),
		ReminderTimezone: getEnv("REMINDER_TIMEZONE", "UTC"),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),
	}

	switch cfg.DBDriver {
	case DriverMySQL:
		cfg.DBDSN = getEnv("DB_DSN", "")
		if cfg.DBDSN == "" {
			cfg.DBDSN = buildMySQLDSN(
				getEnv("DB_USER", "root"),
				getEnv("DB_PASS", ""),
				getEnv("DB_HOST", "127.0.0.1"),
				getEnv("DB_PORT", "3306"),
				getEnv("DB_NAME", "table_booking"),
			)
		}
	case DriverSQLite:
		cfg.DBDSN = getEnv("DB_DSN", "table_booking.db")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.MaxBookingAttempts < 1 {
		return nil, fmt.Errorf("BOOKING_MAX_ATTEMPTS must be >= 1, got %d", cfg.MaxBookingAttempts)
	}
	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		return nil, fmt.Errorf("REMINDER_HOUR must be between 0 and 23, got %d", cfg.ReminderHour)
	}
	if _, err := time.LoadLocation(cfg.ReminderTimezone); err != nil {
		return nil, fmt.Errorf("invalid REMINDER_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func buildMySQLDSN(user, pass, host, port, name string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC", user, pass, host, port, name)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
