package app

import (
	"strings"

	"sigrelay/internal/config"
	"sigrelay/internal/notifier"
	"sigrelay/internal/storage"
	kit "sigrelay/internal/transport"
	telegram "sigrelay/internal/transport/telegram/adapter"
	"sigrelay/internal/webhook"
	logx "sigrelay/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: sc.BusyTimeoutDuration(),
	}
}

// mapTelegramConfig reports false when no bot token is set.
func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool) {
	tc := cfg.Telegram
	if strings.TrimSpace(tc.Token) == "" {
		return telegram.Config{}, false
	}
	return telegram.Config{
		Token:   tc.Token,
		APIURL:  tc.APIURL,
		Timeout: tc.TimeoutDuration(),
	}, true
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Target: kit.ChatTarget{
			ChatID:   strings.TrimSpace(cfg.Telegram.ChatID),
			ThreadID: cfg.Telegram.ThreadID,
		},
		Workers:     cfg.Notifier.Workers,
		QueueSize:   cfg.Notifier.QueueSize,
		RatePerSec:  cfg.Notifier.RatePerSec,
		SendTimeout: cfg.Telegram.TimeoutDuration(),
	}
}

func mapRouterConfig(cfg *config.Config) webhook.RouterConfig {
	return webhook.RouterConfig{Path: cfg.Webhook.Path, BodyLimit: cfg.Server.BodyLimit}
}

func mapServerConfig(cfg *config.Config) webhook.ServerConfig {
	return webhook.ServerConfig{
		Listen:       cfg.Server.Listen,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
}

// OpenStorage opens the alert log described by cfg; see storage.Open.
func OpenStorage(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	return storage.Open(mapStorageConfig(cfg), log)
}
