package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Auth     AuthConfig
	Maps     MapsConfig
	Kafka    KafkaConfig
	Fare     FareConfig
	Presence PresenceConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Driver   string // "postgres" or "memory"
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	// AutoMigrate applies MigrationsDir on startup.
	AutoMigrate   bool
	MigrationsDir string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// MapsConfig holds routing provider settings.
type MapsConfig struct {
	GoogleAPIKey string
	Timeout      time.Duration
}

// KafkaConfig holds event stream settings. Publishing is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FareConfig holds the linear fare rates.
type FareConfig struct {
	BaseFare      float64
	RatePerKm     float64
	RatePerMinute float64
}

// PresenceConfig holds driver heartbeat settings.
type PresenceConfig struct {
	MinHeartbeatInterval time.Duration
	MaxAge               time.Duration
	SweepInterval        time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "todaride"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			AutoMigrate:   getBoolEnv("DB_AUTO_MIGRATE", false),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "todaride-dispatch"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Maps: MapsConfig{
			GoogleAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
			Timeout:      getDurationEnv("MAPS_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_EVENTS_TOPIC", "todaride.events"),
		},
		Fare: FareConfig{
			BaseFare:      getFloatEnv("FARE_BASE", 40.00),
			RatePerKm:     getFloatEnv("FARE_PER_KM", 12.00),
			RatePerMinute: getFloatEnv("FARE_PER_MINUTE", 2.00),
		},
		Presence: PresenceConfig{
			MinHeartbeatInterval: getDurationEnv("PRESENCE_MIN_HEARTBEAT_INTERVAL", 5*time.Second),
			MaxAge:               getDurationEnv("PRESENCE_MAX_AGE", 90*time.Second),
			SweepInterval:        getDurationEnv("PRESENCE_SWEEP_INTERVAL", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want postgres or memory", c.Database.Driver))
	}
	if c.Fare.BaseFare < 0 || c.Fare.RatePerKm < 0 || c.Fare.RatePerMinute < 0 {
		errs = append(errs, errors.New("fare rates must be non-negative"))
	}
	if c.Presence.MaxAge <= 0 || c.Presence.SweepInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_MAX_AGE and PRESENCE_SWEEP_INTERVAL must be positive"))
	}
	if c.Presence.MinHeartbeatInterval >= c.Presence.MaxAge {
		errs = append(errs, fmt.Errorf("PRESENCE_MIN_HEARTBEAT_INTERVAL %v must be below PRESENCE_MAX_AGE %v",
			c.Presence.MinHeartbeatInterval, c.Presence.MaxAge))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
