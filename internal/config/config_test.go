package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func newTestManager(path string, env map[string]string) *Manager {
	m := NewManager(path)
	m.SetLookupEnv(envMap(env))
	return m
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := newTestManager("", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, int64(64<<10), cfg.Server.BodyLimit)
	assert.Equal(t, "/webhook", cfg.Webhook.Path)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./data/signals.db", cfg.Storage.Path)
	assert.Equal(t, 1, cfg.Notifier.Workers)
	assert.Equal(t, 64, cfg.Notifier.QueueSize)
	assert.Equal(t, 5, cfg.Notifier.RatePerSec)
	assert.Equal(t, 10*time.Second, cfg.Telegram.TimeoutDuration())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := newTestManager("", map[string]string{
		EnvWebhookSecret: "S",
		EnvBotToken:      "123:abc",
		EnvChatID:        "@alerts",
		EnvDBPath:        "/tmp/x/signals.db",
		EnvListen:        "127.0.0.1:9090",
		EnvLogLevel:      "debug",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "S", cfg.Webhook.Secret)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "@alerts", cfg.Telegram.ChatID)
	assert.Equal(t, "/tmp/x/signals.db", cfg.Storage.Path)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEmptyEnvDoesNotOverride(t *testing.T) {
	path := writeFile(t, "c.json", `{"webhook":{"secret":"fromfile","path":"/webhook"}}`)
	cfg, err := newTestManager(path, map[string]string{EnvWebhookSecret: "  "}).Load()
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.Webhook.Secret)
}

func TestJSONFileMergesOverDefaults(t *testing.T) {
	path := writeFile(t, "c.json", `{
		"server": {"listen": "0.0.0.0:7000", "body_limit": 1024},
		"telegram": {"token": "t", "chat_id": "-100123", "timeout": "3s"},
		"storage": {"driver": "file", "path": "./data/signals.jsonl"}
	}`)
	cfg, err := newTestManager(path, map[string]string{EnvListen: ":7001"}).Load()
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Listen, "env wins over file")
	assert.Equal(t, int64(1024), cfg.Server.BodyLimit)
	assert.Equal(t, "10s", cfg.Server.ReadTimeout, "untouched keys keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Telegram.TimeoutDuration())
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 1, cfg.Notifier.Workers)
}

func TestYAMLFile(t *testing.T) {
	path := writeFile(t, "c.yaml", `
webhook:
  secret: S
  path: /hook
notifier:
  workers: 2
logging:
  level: warn
  console: true
  file:
    enabled: true
    path: ./logs/sigrelay.log
    max_size_mb: 10
`)
	cfg, err := newTestManager(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, "S", cfg.Webhook.Secret)
	assert.Equal(t, "/hook", cfg.Webhook.Path)
	assert.Equal(t, 2, cfg.Notifier.Workers)
	assert.Equal(t, 64, cfg.Notifier.QueueSize)

	lc := cfg.Logging.LogConfig()
	assert.Equal(t, "warn", lc.Level)
	assert.True(t, lc.File.Enabled)
	assert.Equal(t, 10, lc.File.MaxSizeMB)
}

func TestEmptyYAMLFileUsesDefaults(t *testing.T) {
	cfg, err := newTestManager(writeFile(t, "c.yml", "\n"), nil).Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	_, err := newTestManager(writeFile(t, "c.json", `{"servr":{}}`), nil).Parse()
	require.Error(t, err)

	_, err = newTestManager(writeFile(t, "c.json", `{} {}`), nil).Parse()
	require.Error(t, err)

	_, err = newTestManager(writeFile(t, "c.yaml", "webhook:\n  secrt: x\n"), nil).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Default()))

	cases := map[string]func(c *Config){
		"listen":       func(c *Config) { c.Server.Listen = "nope" },
		"body limit":   func(c *Config) { c.Server.BodyLimit = -1 },
		"path":         func(c *Config) { c.Webhook.Path = "webhook" },
		"driver":       func(c *Config) { c.Storage.Driver = "bolt" },
		"sqlite path":  func(c *Config) { c.Storage.Path = "" },
		"mysql dsn":    func(c *Config) { c.Storage.Driver = "mysql" },
		"duration":     func(c *Config) { c.Telegram.Timeout = "soon" },
		"negative dur": func(c *Config) { c.Server.ReadTimeout = "-1s" },
		"level":        func(c *Config) { c.Logging.Level = "loud" },
		"api url":      func(c *Config) { c.Telegram.APIURL = "not a url" },
		"workers":      func(c *Config) { c.Notifier.Workers = 100 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mut(c)
			assert.Error(t, Validate(c))
		})
	}

	c := Default()
	c.Storage.Driver = "none"
	c.Storage.Path = ""
	assert.NoError(t, Validate(c))
}

func TestValidateReportsFieldNames(t *testing.T) {
	c := Default()
	c.Server.Listen = "nope"
	c.Logging.Level = "loud"
	err := Validate(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.listen")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestWarnings(t *testing.T) {
	w := Warnings(Default())
	assert.Len(t, w, 1, "only the empty secret")

	c := Default()
	c.Webhook.Secret = "S"
	c.Telegram.Token = "t"
	c.Storage.Driver = "none"
	assert.Len(t, Warnings(c), 2)
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Telegram.Token = "secret-token"

	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"telegram", "logging"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"telegram"}, RestartRequired(changed))

	changed, _ = SummarizeConfigChange(a, Default())
	assert.Empty(t, changed)
}

func TestWatchPublishesReload(t *testing.T) {
	path := writeFile(t, "c.json", `{"logging":{"level":"info","console":true}}`)
	m := newTestManager(path, nil)
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Rewrite until the watcher is up and sees the change.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.Equal(t, "debug", m.Get().Logging.Level)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug","console":true}}`), 0o600))
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}

func TestWatchIgnoresInvalidReload(t *testing.T) {
	path := writeFile(t, "c.json", `{}`)
	m := newTestManager(path, nil)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o600))
	m.reload()
	select {
	case <-ch:
		t.Fatal("invalid config was published")
	default:
	}
	assert.Equal(t, "info", m.Get().Logging.Level)

	m.reload()
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	m.reload()
	select {
	case <-ch:
		t.Fatal("unchanged config was published")
	default:
	}
}

func TestExampleConfigParses(t *testing.T) {
	cfg, err := newTestManager(filepath.Join("..", "..", "config.example.yaml"), nil).Parse()
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 20, cfg.Logging.File.MaxSizeMB)
}

func TestListenAcceptsEphemeralPort(t *testing.T) {
	c := Default()
	c.Server.Listen = "127.0.0.1:0"
	require.NoError(t, Validate(c))
}
