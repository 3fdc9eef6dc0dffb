package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "08:00", cfg.Shifts.DefaultStart.String())
	assert.Equal(t, "17:00", cfg.Shifts.DefaultEnd.String())
	assert.Nil(t, cfg.Shifts.DefaultThreshold)
	assert.Zero(t, cfg.Reminder.Interval)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.StaleAfter)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/attendance")
	t.Setenv("DEFAULT_SHIFT_START", "22:00")
	t.Setenv("DEFAULT_SHIFT_END", "06:00")
	t.Setenv("DEFAULT_OVERTIME_THRESHOLD", "07:30")
	t.Setenv("REMINDER_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.DefaultSchedule().Overnight())
	require.NotNil(t, cfg.DefaultSchedule().OvertimeThreshold)
	assert.Equal(t, "07:30", cfg.DefaultSchedule().OvertimeThreshold.String())
	assert.Equal(t, 15*time.Minute, cfg.Reminder.Interval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port", "APP_PORT", "http"},
		{"driver", "DB_DRIVER", "mongo"},
		{"postgres without url", "DB_DRIVER", "postgres"},
		{"shift start", "DEFAULT_SHIFT_START", "8am"},
		{"same start and end", "DEFAULT_SHIFT_END", "08:00"},
		{"interval", "REMINDER_INTERVAL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
