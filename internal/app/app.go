// Package app wires configuration, logging, storage, delivery and the HTTP
// surface into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sigrelay/internal/config"
	"sigrelay/internal/eventbus"
	"sigrelay/internal/notifier"
	"sigrelay/internal/relay"
	rtsup "sigrelay/internal/runtime/supervisor"
	"sigrelay/internal/storage"
	kit "sigrelay/internal/transport"
	telegram "sigrelay/internal/transport/telegram/adapter"
	"sigrelay/internal/webhook"
	logx "sigrelay/pkg/logx"
)

type Options struct {
	// ConfigPath is an optional JSON/YAML file. Empty means defaults plus env.
	ConfigPath string
	// LookupEnv replaces os.LookupEnv (tests).
	LookupEnv func(string) (string, bool)
	// DisableWatch skips the config file watcher.
	DisableWatch bool
}

type App struct {
	opts Options
	cfgm *config.Manager
	cfg  atomic.Pointer[config.Config]
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	notif *notifier.Service
	pipe  *relay.Pipeline
	http  *webhook.Server
}

// New loads configuration and builds every component. Nothing runs until
// Start. A config or storage error is returned as-is.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	if opts.LookupEnv != nil {
		cfgm.SetLookupEnv(opts.LookupEnv)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(cfg.Logging.LogConfig())
	log := root.With(logx.String("comp", "app"))
	for _, w := range config.Warnings(cfg) {
		log.Warn(w)
	}

	bus := eventbus.New()

	store, err := storage.Open(mapStorageConfig(cfg), root)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	var sender kit.Sender
	if tc, ok := mapTelegramConfig(cfg); ok {
		ad, err := telegram.New(tc, root.With(logx.String("comp", "telegram")))
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			_ = logSvc.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	notif := notifier.New(mapNotifierConfig(cfg), sender, root, bus)
	pipe := relay.New(relay.Config{Secret: cfg.Webhook.Secret}, notif, store, bus, root)
	router := webhook.NewRouter(mapRouterConfig(cfg), pipe, root)

	a := &App{
		opts:  opts,
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		notif: notif,
		pipe:  pipe,
		http:  webhook.NewServer(mapServerConfig(cfg), router, root),
	}
	a.cfg.Store(cfg)
	return a, nil
}

// Config is the running configuration. Only its logging section changes
// after start.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Addr is the bound HTTP address once started.
func (a *App) Addr() string { return a.http.Addr() }

// Bus exposes relay and delivery lifecycle events.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Delivery outlives the start context so Stop can drain what was accepted.
	a.notif.Start(context.WithoutCancel(a.sup.Context()))
	if err := a.http.Start(a.sup); err != nil {
		a.sup.Cancel()
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("topic", string(e.Topic)), logx.Time("time", e.Time))
			}
		}
	})

	if !a.opts.DisableWatch && a.cfgm.Path() != "" {
		sub := a.cfgm.Subscribe(4)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return
				case newCfg, ok := <-sub:
					if !ok {
						return
					}
					a.applyReload(newCfg)
				}
			}
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	sdNotify(a.log, daemon.SdNotifyReady)
	cfg := a.Config()
	a.log.Info("app started",
		logx.String("addr", a.http.Addr()),
		logx.String("webhook", cfg.Webhook.Path),
		logx.Bool("telegram", a.notif.Configured()),
		logx.String("storage", cfg.Storage.Driver))
	return nil
}

// applyReload re-applies logging live; every other section needs a restart.
func (a *App) applyReload(newCfg *config.Config) {
	cur := a.Config()
	sections, attrs := config.SummarizeConfigChange(cur, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(newCfg.Logging.LogConfig())

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}

	// Keep the running sections as they are so the next diff stays accurate.
	applied := *cur
	applied.Logging = newCfg.Logging
	a.cfg.Store(&applied)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	shutdown := a.Config().Server.ShutdownTimeoutDuration()
	// In-flight requests finish first so their log rows land before storage closes.
	step("http", shutdown, a.http.Stop)
	step("notifier", shutdown, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.sup.Cancel()
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
