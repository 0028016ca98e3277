package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative Go duration. Empty means zero.
// path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// durationOr returns raw as a duration, or def when raw is empty, zero or
// invalid. Validate rejects invalid values before they get here.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c ServerConfig) ReadTimeoutDuration() time.Duration  { return durationOr(c.ReadTimeout, 10*time.Second) }
func (c ServerConfig) WriteTimeoutDuration() time.Duration { return durationOr(c.WriteTimeout, 10*time.Second) }
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return durationOr(c.ShutdownTimeout, 5*time.Second)
}

func (c TelegramConfig) TimeoutDuration() time.Duration { return durationOr(c.Timeout, 10*time.Second) }

func (c StorageConfig) BusyTimeoutDuration() time.Duration { return durationOr(c.BusyTimeout, 5*time.Second) }

// durationFields lists every duration string for validation.
func (c *Config) durationFields() map[string]string {
	return map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"telegram.timeout":        c.Telegram.Timeout,
		"storage.busy_timeout":    c.Storage.BusyTimeout,
	}
}
