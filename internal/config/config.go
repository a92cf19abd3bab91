// Package config loads sqlshell configuration from environment variables
// and an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Path       string `validate:"required"`
		Migrations string // e.g. "file://migrations"; empty skips migrations
	}
	Backoff struct {
		MaxAttempts    int           `validate:"min=0"`
		InitialDelay   time.Duration `validate:"min=0"`
		MaxDelay       time.Duration `validate:"min=0"`
		MaxElapsedTime time.Duration `validate:"min=0"`
		Multiplier     float64       `validate:"min=0"`
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Maintenance struct {
		// Spec is a cron expression; empty disables periodic maintenance.
		Spec string
		// Script is the SQL run on each tick.
		Script string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.DB.Path = getenv("DB_PATH", "data/sqlshell.db")
	c.DB.Migrations = os.Getenv("DB_MIGRATIONS")
	c.Backoff.MaxAttempts = getenvInt("BUSY_MAX_ATTEMPTS", 10)
	c.Backoff.InitialDelay = getenvDuration("BUSY_INITIAL_DELAY", 10*time.Millisecond)
	c.Backoff.MaxDelay = getenvDuration("BUSY_MAX_DELAY", time.Second)
	c.Backoff.MaxElapsedTime = getenvDuration("BUSY_MAX_ELAPSED", 10*time.Second)
	c.Backoff.Multiplier = getenvFloat("BUSY_MULTIPLIER", 2.0)
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = os.Getenv("LOG_FILE")
	c.Maintenance.Spec = os.Getenv("MAINTENANCE_SPEC")
	c.Maintenance.Script = getenv("MAINTENANCE_SCRIPT", "PRAGMA wal_checkpoint(TRUNCATE); PRAGMA optimize;")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
