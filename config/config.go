// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// Config is the full server configuration, loaded from the environment.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Shifts   ShiftConfig
	Reminder ReminderConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver     string // sqlite, postgres or memory
	SQLitePath string
	URL        string
}

// JWTConfig holds JWT configuration. An empty secret disables auth.
type JWTConfig struct {
	Secret string
}

// ShiftConfig names the shift policy file and the schedule used by entries
// that give neither a shift_id nor an explicit schedule.
type ShiftConfig struct {
	File             string
	DefaultStart     generic.TimeOfDay
	DefaultEnd       generic.TimeOfDay
	DefaultThreshold *generic.TimeOfDay
}

// ReminderConfig drives the stale-request reminder loop.
type ReminderConfig struct {
	Interval   time.Duration // zero disables the reminder loop
	StaleAfter time.Duration
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	config.Database = DatabaseConfig{
		Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "attendance.db"),
		URL:        getEnv("DATABASE_URL", ""),
	}

	config.JWT = JWTConfig{Secret: getEnv("JWT_SECRET", "")}

	start, err := generic.ParseTimeOfDay(getEnv("DEFAULT_SHIFT_START", "08:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_SHIFT_START: %w", err)
	}
	end, err := generic.ParseTimeOfDay(getEnv("DEFAULT_SHIFT_END", "17:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_SHIFT_END: %w", err)
	}
	config.Shifts = ShiftConfig{
		File:         getEnv("SHIFTS_FILE", ""),
		DefaultStart: start,
		DefaultEnd:   end,
	}
	if v := getEnv("DEFAULT_OVERTIME_THRESHOLD", ""); v != "" {
		th, err := generic.ParseTimeOfDay(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_OVERTIME_THRESHOLD: %w", err)
		}
		config.Shifts.DefaultThreshold = &th
	}

	interval, err := time.ParseDuration(getEnv("REMINDER_INTERVAL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_INTERVAL: %w", err)
	}
	staleAfter, err := time.ParseDuration(getEnv("REMINDER_STALE_AFTER", "48h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_STALE_AFTER: %w", err)
	}
	config.Reminder = ReminderConfig{Interval: interval, StaleAfter: staleAfter}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if err := c.DefaultSchedule().Validate(); err != nil {
		return fmt.Errorf("default shift: %w", err)
	}
	if c.Reminder.Interval < 0 || c.Reminder.StaleAfter < 0 {
		return fmt.Errorf("reminder durations must not be negative")
	}
	return nil
}

// DefaultSchedule is the schedule for entries without a shift.
func (c *Config) DefaultSchedule() attendance.ShiftSchedule {
	return attendance.ShiftSchedule{
		Start:             c.Shifts.DefaultStart,
		End:               c.Shifts.DefaultEnd,
		OvertimeThreshold: c.Shifts.DefaultThreshold,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
