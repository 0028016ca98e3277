package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	logx "sigrelay/pkg/logx"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their config key, not the Go name.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("listen_addr", isListenAddr)
		validate = v
	})
	return validate
}

// isListenAddr accepts host:port with an optional host and port 0..65535.
func isListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// Validate checks cfg and reports every problem found, one per line.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs error
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = multierr.Append(errs, fieldError(fe))
		}
	}

	fields := cfg.durationFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := ParseDurationField(k, fields[k]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = multierr.Append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = multierr.Append(errs, errors.New("storage.path: required for this driver"))
		}
	case "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = multierr.Append(errs, errors.New("storage.dsn: required for mysql driver"))
		}
	}
	return errs
}

// fieldError renders "server.listen: failed listen_addr" with the leading
// root struct name stripped.
func fieldError(fe validator.FieldError) error {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s", ns, fe.Tag())
}

// Warnings lists settings that are valid but probably not intended.
func Warnings(cfg *Config) []string {
	var out []string
	if cfg.Webhook.Secret == "" {
		out = append(out, "webhook.secret is empty: every webhook will be rejected")
	}
	if (cfg.Telegram.Token == "") != (cfg.Telegram.ChatID == "") {
		out = append(out, "telegram needs both token and chat_id: delivery is disabled")
	}
	if cfg.Storage.Driver == "none" {
		out = append(out, "storage.driver is none: accepted alerts are not logged")
	}
	return out
}
