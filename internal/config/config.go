package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"
)

// Config keeps runtime settings for the dashboard.
type Config struct {
	DatabaseURL      string
	HTTPAddr         string
	TelegramToken    string
	Location         *time.Location
	BackfillInterval time.Duration
	DigestTime       string
	BulkTimeout      time.Duration
	Debug            bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:      strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DigestTime:    strings.TrimSpace(os.Getenv("DIGEST_TIME")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "ops_dashboard.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.DigestTime == "" {
		cfg.DigestTime = "08:00"
	}

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.Debug = true
	}

	tz := strings.TrimSpace(os.Getenv("TIMEZONE"))
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	cfg.BackfillInterval, err = parseMinutes("BACKFILL_INTERVAL_MINUTES", 15)
	if err != nil {
		return cfg, err
	}
	cfg.BulkTimeout, err = parseSeconds("BULK_TIMEOUT_SECONDS", 10)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ApplyLogging configures the standard logrus logger for cfg.
func (c Config) ApplyLogging() {
	if c.Debug {
		log.SetLevel(log.DebugLevel)
	}
}

func parseMinutes(key string, def int) (time.Duration, error) {
	n, err := positiveInt(key, def)
	return time.Duration(n) * time.Minute, err
}

func parseSeconds(key string, def int) (time.Duration, error) {
	n, err := positiveInt(key, def)
	return time.Duration(n) * time.Second, err
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}
