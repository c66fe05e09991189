package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the collector
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Business timezone offset from UTC in hours. All calendar dates are
	// computed in this zone regardless of the host clock.
	TZOffsetHours int

	// Liveness
	OnlineWindow  time.Duration
	SweepInterval time.Duration

	// Report validation
	StaleReportAge time.Duration
	CrossoverGrace time.Duration

	// Day rollover
	RolloverPollInterval time.Duration

	// Messaging and dashboards
	LongPollWait      time.Duration
	BroadcastInterval time.Duration

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	tzOffset, err := strconv.Atoi(getEnv("TZ_OFFSET_HOURS", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_OFFSET_HOURS: %w", err)
	}
	config.TZOffsetHours = tzOffset

	config.OnlineWindow, err = getEnvSeconds("ONLINE_WINDOW", 60)
	if err != nil {
		return nil, err
	}
	config.SweepInterval, err = getEnvSeconds("SWEEP_INTERVAL", 30)
	if err != nil {
		return nil, err
	}
	config.StaleReportAge, err = getEnvSeconds("STALE_REPORT_AGE", 600)
	if err != nil {
		return nil, err
	}
	config.CrossoverGrace, err = getEnvSeconds("CROSSOVER_GRACE", 30)
	if err != nil {
		return nil, err
	}
	config.RolloverPollInterval, err = getEnvSeconds("ROLLOVER_POLL_INTERVAL", 10)
	if err != nil {
		return nil, err
	}
	config.LongPollWait, err = getEnvSeconds("LONG_POLL_WAIT", 30)
	if err != nil {
		return nil, err
	}
	config.BroadcastInterval, err = getEnvSeconds("BROADCAST_INTERVAL", 1)
	if err != nil {
		return nil, err
	}

	config.WSReadTimeout, err = getEnvSeconds("WS_READ_TIMEOUT", 60)
	if err != nil {
		return nil, err
	}
	config.WSWriteTimeout, err = getEnvSeconds("WS_WRITE_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// Location returns the business timezone as a fixed-offset zone.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TZOffsetHours), c.TZOffsetHours*3600)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvSeconds parses an environment variable holding a duration in seconds.
func getEnvSeconds(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultSeconds)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
