package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"DATA_DIR", "QUEUE_BACKEND", "SYNC_INTERVAL", "BATCH_SIZE", "TIMEZONE", "REMINDER_HOUR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DataDir, cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.QueueBackend)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxValidationRetries)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/learnsync")
	t.Setenv("QUEUE_BACKEND", "badger")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("MAX_VALIDATION_RETRIES", "3")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("REMINDER_HOUR", "8")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/learnsync", cfg.DataDir)
	assert.Equal(t, "badger", cfg.QueueBackend)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxValidationRetries)
	assert.Equal(t, 8, cfg.ReminderHour)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"BATCH_SIZE", "many"},
		{"BATCH_SIZE", "0"},
		{"SYNC_INTERVAL", "soon"},
		{"QUEUE_BACKEND", "redis"},
		{"REMINDER_HOUR", "24"},
		{"TIMEZONE", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLogOutput(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, os.Stderr, cfg.LogOutput())

	cfg.LogFile = t.TempDir() + "/learnsync.log"
	out, ok := cfg.LogOutput().(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, cfg.LogFile, out.Filename)
	assert.Equal(t, cfg.LogMaxSizeMB, out.MaxSize)
}

func TestNewLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "sync").Print("hello")
	assert.Contains(t, buf.String(), "[sync] ")
	assert.Contains(t, buf.String(), "hello")
}
