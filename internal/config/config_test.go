package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"DATABASE_URL", "HTTP_ADDR", "TELEGRAM_TOKEN", "TIMEZONE",
	"BACKFILL_INTERVAL_MINUTES", "DIGEST_TIME", "BULK_TIMEOUT_SECONDS", "DEBUG",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ops_dashboard.db", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.TelegramToken)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 15*time.Minute, cfg.BackfillInterval)
	assert.Equal(t, "08:00", cfg.DigestTime)
	assert.Equal(t, 10*time.Second, cfg.BulkTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "/var/lib/ops/db.sqlite")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("BACKFILL_INTERVAL_MINUTES", "5")
	t.Setenv("BULK_TIMEOUT_SECONDS", "3")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ops/db.sqlite", cfg.DatabaseURL)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, 5*time.Minute, cfg.BackfillInterval)
	assert.Equal(t, 3*time.Second, cfg.BulkTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"TIMEZONE":                  "Mars/Olympus",
		"BACKFILL_INTERVAL_MINUTES": "0",
		"BULK_TIMEOUT_SECONDS":      "soon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
