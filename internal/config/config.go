// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the catalog service.
type Config struct {
	Port                string
	GRPCPort            string
	DatabaseURL         string
	RedisURL            string
	QueueReportInterval int // minutes between review-queue reports
	LogLevel            string
	LogFormat           string
}

// Load reads a .env file (if present) and the environment, and returns a
// validated Config. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := 30
	if s := os.Getenv("QUEUE_REPORT_INTERVAL_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("QUEUE_REPORT_INTERVAL_MINUTES must be a positive integer, got %q", s)
		}
		interval = v
	}

	return &Config{
		Port:                envOr("CATALOG_PORT", "8083"),
		GRPCPort:            envOr("CATALOG_GRPC_PORT", "9083"),
		DatabaseURL:         dbURL,
		RedisURL:            redisURL,
		QueueReportInterval: interval,
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
