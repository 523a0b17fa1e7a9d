package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultTimeout        = 10 * time.Second
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	WeatherAPI struct {
		OpenWeatherAPIKey string
		OpenWeatherURL    string
		Timeout           time.Duration
		DiagnosticCity    string
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}

	Probe struct {
		// Cron spec; empty disables the background probe.
		Schedule string
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "5000")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"), defaultTimeout)
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"), defaultTimeout)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Weather API configuration
	cfg.WeatherAPI.OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", "")
	cfg.WeatherAPI.OpenWeatherURL = getEnv("OPENWEATHER_URL", defaultOpenWeatherURL)
	cfg.WeatherAPI.Timeout = parseDuration(getEnv("OPENWEATHER_TIMEOUT", "10s"), defaultTimeout)
	cfg.WeatherAPI.DiagnosticCity = getEnv("DIAGNOSTIC_CITY", "London")

	// Circuit breaker configuration. Zero leaves the breaker closed for good.
	cfg.CircuitBreaker.Threshold = parseNonNegativeInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "0"), 0)
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"), 30*time.Second)

	// Retry configuration. Zero retries keeps a lookup to a single GET.
	cfg.Retry.MaxRetries = parseNonNegativeInt(getEnv("MAX_RETRIES", "0"), 0)
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"), time.Second)
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"), 2)

	cfg.Probe.Schedule = getEnv("PROBE_SCHEDULE", "")

	return cfg, nil
}

// HasAPIKey reports whether an upstream credential is configured.
func (c *Config) HasAPIKey() bool {
	return c.WeatherAPI.OpenWeatherAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return fallback
	}
	return duration
}

func parseInt(value string, fallback int) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return fallback
	}
	return intValue
}

func parseNonNegativeInt(value string, fallback int) int {
	intValue := parseInt(value, fallback)
	if intValue < 0 {
		zap.L().Warn("Negative value not allowed", zap.String("value", value))
		return fallback
	}
	return intValue
}

func parseFloat(value string, fallback float64) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return fallback
	}
	return floatValue
}
