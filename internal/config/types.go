// Package config loads the relay configuration from an optional JSON/YAML
// file plus environment overrides, validates it and watches the file for
// changes.
package config

// Config is the full relay configuration. Durations are Go duration
// strings (e.g. "500ms", "10s").
type Config struct {
	Server   ServerConfig   `json:"server"`
	Webhook  WebhookConfig  `json:"webhook"`
	Telegram TelegramConfig `json:"telegram"`
	Notifier NotifierConfig `json:"notifier"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Listen string `json:"listen" validate:"required,listen_addr"`
	// BodyLimit caps the webhook body in bytes.
	BodyLimit       int64  `json:"body_limit" validate:"gte=0"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type WebhookConfig struct {
	// Secret must match the "secret" carried by every alert. Empty denies all.
	Secret string `json:"secret"`
	Path   string `json:"path" validate:"required,startswith=/"`
}

// TelegramConfig is the delivery destination. Token and ChatID are both
// optional; delivery is skipped when either is missing.
type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is a numeric chat ID or an @channel username.
	ChatID   string `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty" validate:"gte=0"`
	APIURL   string `json:"api_url,omitempty" validate:"omitempty,url"`
	Timeout  string `json:"timeout,omitempty"`
}

type NotifierConfig struct {
	Workers    int `json:"workers" validate:"gte=0,lte=32"`
	QueueSize  int `json:"queue_size" validate:"gte=0,lte=100000"`
	RatePerSec int `json:"rate_per_sec" validate:"gte=0"`
}

// StorageConfig selects the alert log backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/signals.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 file mysql none"`
	Path        string `json:"path"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			BodyLimit:       64 << 10,
			ReadTimeout:     "10s",
			WriteTimeout:    "10s",
			ShutdownTimeout: "5s",
		},
		Webhook:  WebhookConfig{Path: "/webhook"},
		Telegram: TelegramConfig{Timeout: "10s"},
		Notifier: NotifierConfig{Workers: 1, QueueSize: 64, RatePerSec: 5},
		Storage:  StorageConfig{Driver: "sqlite", Path: "./data/signals.db", BusyTimeout: "5s"},
		Logging:  LoggingConfig{Level: "info", Console: true},
	}
}
