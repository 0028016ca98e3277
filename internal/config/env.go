package config

import (
	"os"
	"strings"
)

// Environment variables that override file values when set and non-empty.
const (
	EnvWebhookSecret = "WEBHOOK_SECRET"
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChatID        = "TELEGRAM_CHAT_ID"
	EnvDBPath        = "DB_PATH"
	EnvListen        = "SIGRELAY_LISTEN"
	EnvLogLevel      = "SIGRELAY_LOG_LEVEL"
)

// ApplyEnv overlays environment variables onto cfg. lookup defaults to
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			if v = strings.TrimSpace(v); v != "" {
				*dst = v
			}
		}
	}
	set(EnvWebhookSecret, &cfg.Webhook.Secret)
	set(EnvBotToken, &cfg.Telegram.Token)
	set(EnvChatID, &cfg.Telegram.ChatID)
	set(EnvDBPath, &cfg.Storage.Path)
	set(EnvListen, &cfg.Server.Listen)
	set(EnvLogLevel, &cfg.Logging.Level)
}
